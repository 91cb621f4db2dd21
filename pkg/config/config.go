// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/capturedriver/pkg/orchestrator"
	"github.com/user/capturedriver/pkg/ports"
)

// Config represents the full configuration for a capture driver.
type Config struct {
	// Job
	URL    string `yaml:"url"`
	JobID  string `yaml:"job_id"`
	UserID string `yaml:"user_id"`

	Browser BrowserConfig `yaml:"browser"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Embeds  EmbedConfig   `yaml:"embeds"`
	Capture CaptureConfig `yaml:"capture"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`

	// WebhookData is the JSON list of callback registrations.
	WebhookData string `yaml:"webhook_data"`

	// Status server
	Listen string `yaml:"listen"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// BrowserConfig locates the remote browser.
type BrowserConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// ProxyConfig locates the recording proxy. An empty host disables it.
type ProxyConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// Origin returns the proxy base URL, or "" when no proxy is configured.
func (p ProxyConfig) Origin() string {
	if p.Host == "" {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
}

// EmbedConfig controls capturing through embed wrapper pages.
type EmbedConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	IncludeSourcePage bool   `yaml:"include_source_page"`
	// RulesFile replaces the built-in rule table when set.
	RulesFile string `yaml:"rules_file"`
}

// CaptureConfig holds the lifecycle ceilings and switches.
type CaptureConfig struct {
	DisableCache    bool          `yaml:"disable_cache"`
	AutoScroll      bool          `yaml:"auto_scroll"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	BehaviorTimeout time.Duration `yaml:"behavior_timeout"`
	VideoTimeout    time.Duration `yaml:"video_timeout"`
	ScrollTimeout   time.Duration `yaml:"scroll_timeout"`
	SettleTimeout   time.Duration `yaml:"settle_timeout"`
	// StableThreshold is the largest in-flight count accepted as settled when
	// it stops changing. Negative values only accept a fully drained proxy.
	StableThreshold int    `yaml:"stable_threshold"`
	ArchivePath     string `yaml:"archive_path"`
	ExitFile        string `yaml:"exit_file"`
}

// StorageConfig describes where archives are uploaded.
type StorageConfig struct {
	URL               string `yaml:"url"`
	Prefix            string `yaml:"prefix"`
	Filename          string `yaml:"filename"`
	AccessURLTemplate string `yaml:"access_url_template"`
	Endpoint          string `yaml:"endpoint"`
	AccessKey         string `yaml:"access_key"`
	SecretKey         string `yaml:"secret_key"`
	Region            string `yaml:"region"`
	PathStyle         bool   `yaml:"path_style"`
	ACL               string `yaml:"acl"`
}

// DestURL returns the upload destination: URL, or Prefix+Filename.
func (s StorageConfig) DestURL() string {
	if s.URL != "" {
		return s.URL
	}
	if s.Prefix != "" && s.Filename != "" {
		return s.Prefix + s.Filename
	}
	return ""
}

// LogConfig selects log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	d := orchestrator.DefaultConfig()
	return Config{
		Browser: BrowserConfig{
			Host:          "localhost",
			Port:          d.Browser.Port,
			RetryInterval: d.Browser.RetryInterval,
		},
		Proxy: ProxyConfig{
			Port:       8080,
			Collection: "capture",
		},
		Embeds: EmbedConfig{
			Host:              "embedserver",
			Port:              80,
			IncludeSourcePage: d.IncludeSourcePage,
		},
		Capture: CaptureConfig{
			AutoScroll:      d.AutoScroll,
			PageLoadTimeout: d.PageLoadTimeout,
			BehaviorTimeout: d.BehaviorTimeout,
			VideoTimeout:    d.VideoTimeout,
			ScrollTimeout:   d.ScrollTimeout,
			SettleTimeout:   d.SettleTimeout,
			StableThreshold: 2,
			ArchivePath:     d.ArchivePath,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
			ACL:    "public-read",
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(ports.FormatConsole),
		},
		Listen:   ":3000",
		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with the environment variables that are set.
// It returns the first malformed value it encounters.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str(&c.Browser.Host, "BROWSER_HOST")
	e.integer(&c.Browser.Port, "BROWSER_PORT")
	e.str(&c.Proxy.Host, "PROXY_HOST")
	e.integer(&c.Proxy.Port, "PROXY_PORT")

	e.str(&c.URL, "URL")
	e.str(&c.URL, "CAPTURE_URL")
	e.str(&c.JobID, "JOBID")
	e.str(&c.UserID, "USERID")

	e.flag(&c.Capture.DisableCache, "DISABLE_CACHE")
	e.flag(&c.Capture.AutoScroll, "AUTO_SCROLL")
	e.integer(&c.Capture.StableThreshold, "STABLE_THRESHOLD")
	e.str(&c.Capture.ExitFile, "EXIT_FILE")
	e.str(&c.Capture.ArchivePath, "ARCHIVE_PATH")

	e.flag(&c.Embeds.Enabled, "EMBEDS")
	e.str(&c.Embeds.Host, "EMBED_HOST")
	e.integer(&c.Embeds.Port, "EMBED_PORT")
	e.flag(&c.Embeds.IncludeSourcePage, "INCLUDE_SOURCE_PAGE")
	e.str(&c.Embeds.RulesFile, "EMBED_RULES")

	e.str(&c.Storage.URL, "STORAGE_URL")
	e.str(&c.Storage.Prefix, "STORAGE_PREFIX")
	e.str(&c.Storage.Filename, "UPLOAD_FILENAME")
	e.str(&c.Storage.AccessURLTemplate, "ACCESS_URL_TEMPLATE")
	e.str(&c.Storage.Endpoint, "AWS_ENDPOINT")
	e.str(&c.Storage.AccessKey, "AWS_ACCESS_KEY_ID")
	e.str(&c.Storage.SecretKey, "AWS_SECRET_ACCESS_KEY")
	e.str(&c.Storage.Region, "AWS_REGION")
	e.flag(&c.Storage.PathStyle, "AWS_PATH_STYLE")
	e.str(&c.Storage.ACL, "UPLOAD_ACL")

	e.str(&c.WebhookData, "WEBHOOK_DATA")
	e.str(&c.Log.Level, "LOG_LEVEL")
	e.str(&c.Log.Format, "LOG_FORMAT")
	e.str(&c.Log.File, "LOG_FILE")

	return e.err
}

type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) str(dst *string, key string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(dst *int, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if e.err == nil {
			e.err = fmt.Errorf("%s: invalid integer %q", key, v)
		}
		return
	}
	*dst = n
}

// flag treats any value other than 0/false/no/off as true, matching how
// the deployment sets switches like DISABLE_CACHE=1.
func (e *envReader) flag(dst *bool, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "0", "false", "no", "off":
		*dst = false
	default:
		*dst = true
	}
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	if c.Browser.Port <= 0 || c.Browser.Port > 65535 {
		return fmt.Errorf("invalid browser port %d", c.Browser.Port)
	}
	if c.Proxy.Host != "" && (c.Proxy.Port <= 0 || c.Proxy.Port > 65535) {
		return fmt.Errorf("invalid proxy port %d", c.Proxy.Port)
	}
	if dest := c.Storage.DestURL(); dest != "" && !strings.HasPrefix(dest, "s3://") {
		return fmt.Errorf("storage url %q must start with s3://", dest)
	}
	if f := c.Log.Format; f != "" && f != string(ports.FormatConsole) && f != string(ports.FormatJSON) {
		return fmt.Errorf("unknown log format %q", f)
	}
	return nil
}

// ToDriverConfig converts Config to orchestrator.Config.
func (c Config) ToDriverConfig() orchestrator.Config {
	return orchestrator.Config{
		Browser: ports.ConnectOptions{
			Host:          c.Browser.Host,
			Port:          c.Browser.Port,
			RetryInterval: c.Browser.RetryInterval,
		},
		DisableCache:      c.Capture.DisableCache,
		UseEmbed:          c.Embeds.Enabled,
		IncludeSourcePage: c.Embeds.IncludeSourcePage,
		PageLoadTimeout:   c.Capture.PageLoadTimeout,
		AutoScroll:        c.Capture.AutoScroll,
		BehaviorTimeout:   c.Capture.BehaviorTimeout,
		VideoTimeout:      c.Capture.VideoTimeout,
		ScrollTimeout:     c.Capture.ScrollTimeout,
		SettleTimeout:     c.Capture.SettleTimeout,
		ArchivePath:       c.Capture.ArchivePath,
		DestURL:           c.Storage.DestURL(),
		AccessTemplate:    c.Storage.AccessURLTemplate,
		ExitFile:          c.Capture.ExitFile,
	}
}
