// Package proxyclient talks to the recording proxy's control API.
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/capturedriver/pkg/ports"
)

// DefaultCollection is the archive collection the proxy records into.
const DefaultCollection = "capture"

// Client implements ports.RecordingProxy over HTTP.
type Client struct {
	origin     string
	collection string
	http       *http.Client
	logger     ports.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithCollection sets the collection name used in API paths.
func WithCollection(name string) Option {
	return func(cl *Client) { cl.collection = name }
}

// New creates a client for the proxy at origin (e.g. http://proxy:8080).
func New(origin string, logger ports.Logger, opts ...Option) *Client {
	c := &Client{
		origin:     strings.TrimRight(origin, "/"),
		collection: DefaultCollection,
		http:       &http.Client{Timeout: 2 * time.Minute},
		logger:     logger.WithComponent("proxy"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Origin returns the proxy base URL.
func (c *Client) Origin() string {
	return c.origin
}

// Pending samples the proxy's in-flight write counters.
func (c *Client) Pending(ctx context.Context) (ports.PendingSample, error) {
	var sample ports.PendingSample
	resp, err := c.do(ctx, http.MethodGet, c.origin+"/api/pending", "", nil)
	if err != nil {
		return sample, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sample, statusError("pending", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&sample); err != nil {
		return sample, fmt.Errorf("decode pending: %w", err)
	}
	return sample, nil
}

// Commit asks the proxy to write the archive with entryURL as its main page.
func (c *Client) Commit(ctx context.Context, entryURL string) error {
	q := url.Values{"url": {entryURL}}
	endpoint := fmt.Sprintf("%s/api/wacz/%s?%s", c.origin, c.collection, q.Encode())

	resp, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("commit", resp)
	}
	io.Copy(io.Discard, resp.Body)
	c.logger.Debug("Archive committed for %s", entryURL)
	return nil
}

// PutCustomRecord stores body in the archive under the synthetic url.
func (c *Client) PutCustomRecord(ctx context.Context, recordURL, contentType string, body []byte) error {
	q := url.Values{"url": {recordURL}}
	endpoint := fmt.Sprintf("%s/api/custom/%s?%s", c.origin, c.collection, q.Encode())

	resp, err := c.do(ctx, http.MethodPut, endpoint, contentType, body)
	if err != nil {
		return fmt.Errorf("put custom record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("put custom record", resp)
	}

	// The proxy answers 200 with an error body for missing parameters.
	var result struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Error != "" {
		return fmt.Errorf("put custom record: %s", result.Error)
	}
	return nil
}

// RecordURL fetches targetURL through the proxy's recording endpoint.
func (c *Client) RecordURL(ctx context.Context, targetURL string) error {
	endpoint := fmt.Sprintf("%s/%s/record/mp_/%s", c.origin, c.collection, targetURL)

	resp, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return fmt.Errorf("record %s: %w", targetURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("record %s: status %d", targetURL, resp.StatusCode)
	}
	return nil
}

// Exit tells the proxy the capture is over.
func (c *Client) Exit(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.origin+"/api/exit", "", nil)
	if err != nil {
		return fmt.Errorf("exit: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(msg))
	if text == "" {
		return fmt.Errorf("%s: status %d", op, resp.StatusCode)
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, text)
}

// Ensure Client implements ports.RecordingProxy
var _ ports.RecordingProxy = (*Client)(nil)
