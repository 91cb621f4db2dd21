package behavior

import (
	_ "embed"
	"fmt"
	"net/url"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule describes how to recognize one embeddable content type.
type Rule struct {
	Name           string            `yaml:"name"`
	Match          string            `yaml:"match"`
	LookupEndpoint string            `yaml:"oe"`
	Params         map[string]string `yaml:"params,omitempty"`
	// Video marks sources whose interaction usually starts media playback.
	Video bool `yaml:"video,omitempty"`

	matcher *regexp.Regexp
}

// Matches reports whether the rule applies to target.
func (r Rule) Matches(target string) bool {
	return r.matcher != nil && r.matcher.MatchString(target)
}

// LookupURL builds the metadata lookup URL for target: the endpoint with the
// rule's params and the target as the url parameter.
func (r Rule) LookupURL(target string) string {
	q := url.Values{}
	for k, v := range r.Params {
		q.Set(k, v)
	}
	q.Set("url", target)
	return r.LookupEndpoint + "?" + q.Encode()
}

// RuleSet is an ordered, immutable list of rules.
type RuleSet struct {
	rules []Rule
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in rule table.
func DefaultRules() *RuleSet {
	rs, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("behavior: invalid built-in rules: %v", err))
	}
	return rs
}

// ParseRules parses a YAML rule table. Every rule must compile and name a
// known interaction routine.
func ParseRules(data []byte) (*RuleSet, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rule table is empty")
	}

	seen := make(map[string]bool, len(f.Rules))
	for i := range f.Rules {
		r := &f.Rules[i]
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule %q", r.Name)
		}
		seen[r.Name] = true
		if _, ok := routines[r.Name]; !ok {
			return nil, fmt.Errorf("rule %q has no interaction routine", r.Name)
		}
		if r.LookupEndpoint == "" {
			return nil, fmt.Errorf("rule %q has no lookup endpoint", r.Name)
		}
		rx, err := regexp.Compile(r.Match)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.matcher = rx
	}
	return &RuleSet{rules: f.Rules}, nil
}

// Match returns the first rule that applies to target.
func (rs *RuleSet) Match(target string) (Rule, bool) {
	if rs == nil {
		return Rule{}, false
	}
	for _, r := range rs.rules {
		if r.Matches(target) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the ordered rule list.
func (rs *RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}
