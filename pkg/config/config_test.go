package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Browser.Port != 9222 || cfg.Browser.RetryInterval != 500*time.Millisecond {
		t.Errorf("unexpected browser defaults %+v", cfg.Browser)
	}
	if cfg.Capture.SettleTimeout != 15*time.Second || cfg.Capture.PageLoadTimeout != 60*time.Second {
		t.Errorf("unexpected ceilings %+v", cfg.Capture)
	}
	if cfg.Capture.StableThreshold != 2 {
		t.Errorf("expected stable threshold 2, got %d", cfg.Capture.StableThreshold)
	}
	if cfg.Capture.ArchivePath != "/tmp/out/archive.wacz" {
		t.Errorf("unexpected archive path %q", cfg.Capture.ArchivePath)
	}
	if cfg.Proxy.Origin() != "" {
		t.Error("expected no proxy by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Defaults()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"BROWSER_HOST":        "browser",
		"PROXY_HOST":          "proxy",
		"PROXY_PORT":          "8081",
		"CAPTURE_URL":         "https://example.com/",
		"DISABLE_CACHE":       "1",
		"EMBEDS":              "true",
		"EMBED_PORT":          "3000",
		"STORAGE_PREFIX":      "s3://bucket/captures/",
		"UPLOAD_FILENAME":     "abc.wacz",
		"ACCESS_URL_TEMPLATE": "https://cdn.example/{filename}",
		"AWS_PATH_STYLE":      "yes",
		"EXIT_FILE":           "/tmp/out/exit",
		"JOBID":               "job-1",
		"LOG_FORMAT":          "json",
		"AUTO_SCROLL":         "0",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Browser.Host != "browser" {
		t.Errorf("unexpected browser host %q", cfg.Browser.Host)
	}
	if cfg.Proxy.Origin() != "http://proxy:8081" {
		t.Errorf("unexpected proxy origin %q", cfg.Proxy.Origin())
	}
	if !cfg.Capture.DisableCache || !cfg.Embeds.Enabled || !cfg.Storage.PathStyle {
		t.Error("expected switches to be enabled")
	}
	if cfg.Capture.AutoScroll {
		t.Error("expected AUTO_SCROLL=0 to disable scrolling")
	}
	if cfg.Storage.DestURL() != "s3://bucket/captures/abc.wacz" {
		t.Errorf("unexpected destination %q", cfg.Storage.DestURL())
	}

	dc := cfg.ToDriverConfig()
	if dc.Browser.Host != "browser" || !dc.DisableCache || !dc.UseEmbed {
		t.Errorf("unexpected driver config %+v", dc)
	}
	if dc.DestURL != "s3://bucket/captures/abc.wacz" || dc.ExitFile != "/tmp/out/exit" {
		t.Errorf("unexpected commit settings %+v", dc)
	}
	if dc.AccessTemplate != "https://cdn.example/{filename}" {
		t.Errorf("unexpected access template %q", dc.AccessTemplate)
	}
}

func TestApplyEnv_URLPrecedence(t *testing.T) {
	cfg := Defaults()
	if err := cfg.ApplyEnv(envMap(map[string]string{"URL": "https://a.example", "CAPTURE_URL": "https://b.example"})); err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "https://b.example" {
		t.Errorf("expected CAPTURE_URL to win, got %q", cfg.URL)
	}
}

func TestApplyEnv_EmptyValuesIgnored(t *testing.T) {
	cfg := Defaults()
	if err := cfg.ApplyEnv(envMap(map[string]string{"BROWSER_HOST": "", "DISABLE_CACHE": ""})); err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Host != "localhost" || cfg.Capture.DisableCache {
		t.Error("empty variables must not override defaults")
	}
}

func TestApplyEnv_InvalidInteger(t *testing.T) {
	cfg := Defaults()
	if err := cfg.ApplyEnv(envMap(map[string]string{"PROXY_PORT": "eighty"})); err == nil {
		t.Fatal("expected an error for a malformed port")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.yaml")
	data := `
url: https://example.com/
browser:
  host: chrome
capture:
  settle_timeout: 5s
  stable_threshold: -1
embeds:
  enabled: true
  include_source_page: false
storage:
  url: s3://bucket/key.wacz
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Browser.Host != "chrome" || cfg.Browser.Port != 9222 {
		t.Errorf("expected file values over defaults, got %+v", cfg.Browser)
	}
	if cfg.Capture.SettleTimeout != 5*time.Second || cfg.Capture.StableThreshold != -1 {
		t.Errorf("unexpected capture settings %+v", cfg.Capture)
	}
	if cfg.Embeds.IncludeSourcePage {
		t.Error("expected include_source_page to be disabled")
	}
	if cfg.Capture.BehaviorTimeout != 30*time.Second {
		t.Error("expected unset values to keep their defaults")
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"browser port", func(c *Config) { c.Browser.Port = 0 }},
		{"proxy port", func(c *Config) { c.Proxy.Host = "proxy"; c.Proxy.Port = 70000 }},
		{"storage scheme", func(c *Config) { c.Storage.URL = "https://bucket/key" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
