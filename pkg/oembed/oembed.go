// Package oembed resolves capture URLs to clean embed views through
// the providers' oEmbed endpoints.
package oembed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/user/capturedriver/pkg/behavior"
	"github.com/user/capturedriver/pkg/ports"
)

// Response is the subset of an oEmbed response the capture uses.
type Response struct {
	HTML         string    `json:"html"`
	Width        Dimension `json:"width"`
	Height       Dimension `json:"height"`
	Type         string    `json:"type,omitempty"`
	Title        string    `json:"title,omitempty"`
	AuthorName   string    `json:"author_name,omitempty"`
	ProviderName string    `json:"provider_name,omitempty"`
}

// Dimension is a pixel size. Providers send numbers, numeric strings or null;
// anything else decodes as zero.
type Dimension int

func (d *Dimension) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*d = 0
		return nil
	}
	*d = Dimension(f)
	return nil
}

// Embed is a resolved embed: the provider response and the rule that matched.
type Embed struct {
	Rule     behavior.Rule
	Response Response
}

// Meta returns the job metadata for the embed.
func (e Embed) Meta() ports.EmbedMeta {
	return ports.EmbedMeta{
		Width:  int(e.Response.Width),
		Height: int(e.Response.Height),
		Type:   e.Rule.Name,
	}
}

// Client looks up oEmbed responses and caches them per URL.
// It implements ports.EmbedResolver for a wrapper server at Prefix.
type Client struct {
	rules  *behavior.RuleSet
	prefix string
	http   *http.Client
	logger ports.Logger

	mu    sync.Mutex
	cache map[string]Embed
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Client. prefix is the origin of the wrapper server
// (see Prefix).
func New(rules *behavior.RuleSet, prefix string, logger ports.Logger, opts ...Option) *Client {
	c := &Client{
		rules:  rules,
		prefix: strings.TrimRight(prefix, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger.WithComponent("oembed"),
		cache:  make(map[string]Embed),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prefix builds the wrapper server origin. Port 80 is left implicit.
func Prefix(host string, port int) string {
	if port == 0 || port == 80 {
		return "http://" + host
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Rules returns the rule table the client matches against.
func (c *Client) Rules() *behavior.RuleSet {
	return c.rules
}

// InfoURL returns the provider lookup URL for target.
func (c *Client) InfoURL(target string) (string, bool) {
	rule, ok := c.rules.Match(target)
	if !ok {
		return "", false
	}
	return rule.LookupURL(target), true
}

// Lookup fetches the oEmbed response for target. ok is false when no rule
// matches or the provider does not answer with 200.
func (c *Client) Lookup(ctx context.Context, target string) (Embed, bool, error) {
	rule, ok := c.rules.Match(target)
	if !ok {
		return Embed{}, false, nil
	}

	c.mu.Lock()
	cached, hit := c.cache[target]
	c.mu.Unlock()
	if hit {
		return cached, true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rule.LookupURL(target), nil)
	if err != nil {
		return Embed{}, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Embed{}, false, fmt.Errorf("oembed lookup %s: %w", rule.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.logger.Debug("oEmbed lookup for %s returned %d", target, resp.StatusCode)
		return Embed{}, false, nil
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Embed{}, false, fmt.Errorf("decode oembed response: %w", err)
	}

	embed := Embed{Rule: rule, Response: body}
	c.mu.Lock()
	c.cache[target] = embed
	c.mu.Unlock()
	return embed, true, nil
}

// Resolve returns the wrapper page URL for captureURL when it has an embed with markup.
func (c *Client) Resolve(ctx context.Context, captureURL string) (string, ports.EmbedMeta, bool, error) {
	embed, ok, err := c.Lookup(ctx, captureURL)
	if err != nil || !ok || embed.Response.HTML == "" {
		return "", ports.EmbedMeta{}, false, err
	}
	return c.prefix + "/e/" + captureURL, embed.Meta(), true, nil
}

// ProbeURL returns the wrapper server's lookup redirect for captureURL.
func (c *Client) ProbeURL(captureURL string) string {
	return c.prefix + "/info/" + captureURL
}

// Ensure Client implements ports.EmbedResolver
var _ ports.EmbedResolver = (*Client)(nil)
