package behavior

import (
	"net/url"
	"strings"
	"testing"
)

func TestDefaultRules_Match(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		url  string
		want string
	}{
		{"https://twitter.com/jack/status/20", "tweet"},
		{"https://www.instagram.com/p/B4s2Rb1hxYz/", "instagram"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "youtube"},
		{"https://youtu.be/dQw4w9WgXcQ", "youtube"},
		{"https://www.facebook.com/someone/videos/1234567890/", "facebook_video"},
		{"https://www.facebook.com/someone/posts/1234567890", "facebook"},
		{"https://example.com/article", ""},
		{"https://twitter.com/jack", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rule, ok := rules.Match(tt.url)
			if tt.want == "" {
				if ok {
					t.Errorf("expected no rule, got %q", rule.Name)
				}
				return
			}
			if !ok || rule.Name != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.url, rule.Name, tt.want)
			}
		})
	}
}

func TestRule_LookupURL(t *testing.T) {
	rules := DefaultRules()
	rule, ok := rules.Match("https://www.youtube.com/watch?v=abc")
	if !ok {
		t.Fatal("expected youtube rule")
	}

	lookup := rule.LookupURL("https://www.youtube.com/watch?v=abc")
	if !strings.HasPrefix(lookup, "https://www.youtube.com/oembed?") {
		t.Fatalf("unexpected lookup url %q", lookup)
	}

	u, err := url.Parse(lookup)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("format") != "json" {
		t.Errorf("expected format=json, got %q", q.Get("format"))
	}
	if q.Get("url") != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("expected target url param, got %q", q.Get("url"))
	}
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "rules: []"},
		{"unknown routine", "rules:\n  - name: vimeo\n    match: vimeo\n    oe: https://vimeo.com/api/oembed.json\n"},
		{"bad pattern", "rules:\n  - name: tweet\n    match: '('\n    oe: https://publish.twitter.com/oembed\n"},
		{"no endpoint", "rules:\n  - name: tweet\n    match: twitter\n"},
		{"duplicate", "rules:\n  - name: tweet\n    match: a\n    oe: x\n  - name: tweet\n    match: b\n    oe: y\n"},
		{"not yaml", "rules: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.yaml)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRuleSet_FirstMatchWins(t *testing.T) {
	rules, err := ParseRules([]byte(`
rules:
  - name: facebook_video
    match: 'facebook\.com/.+/videos/'
    oe: https://fb.example/video
  - name: facebook
    match: 'facebook\.com/'
    oe: https://fb.example/post
`))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}

	rule, ok := rules.Match("https://facebook.com/page/videos/1/")
	if !ok || rule.Name != "facebook_video" {
		t.Errorf("expected facebook_video, got %q", rule.Name)
	}
	if len(rules.Rules()) != 2 {
		t.Errorf("expected 2 rules, got %d", len(rules.Rules()))
	}
}
