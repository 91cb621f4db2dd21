// Package webhook notifies callback URLs when a capture job completes.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/ports"
)

// SignatureHeader carries the hex HMAC of the form-encoded body.
const SignatureHeader = "X-Hook-Signature"

// Hook is one callback registration.
type Hook struct {
	CallbackURL         string `json:"callbackUrl"`
	SigningKey          string `json:"signingKey,omitempty"`
	SigningKeyAlgorithm string `json:"signingKeyAlgorithm,omitempty"`
	UserDataField       string `json:"userDataField,omitempty"`
}

// Validate checks the callback URL and that key and algorithm come together.
func (h Hook) Validate() error {
	u, err := url.Parse(h.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid callback url %q", h.CallbackURL)
	}
	if (h.SigningKey == "") != (h.SigningKeyAlgorithm == "") {
		return errors.New("signingKey and signingKeyAlgorithm must be given together")
	}
	if h.SigningKeyAlgorithm != "" {
		if _, err := hasher(h.SigningKeyAlgorithm); err != nil {
			return err
		}
	}
	return nil
}

// ParseHooks decodes the WEBHOOK_DATA JSON list. An empty string means no hooks.
func ParseHooks(data string) ([]Hook, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var hooks []Hook
	if err := json.Unmarshal([]byte(data), &hooks); err != nil {
		return nil, fmt.Errorf("parse webhook data: %w", err)
	}
	for i, h := range hooks {
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("webhook %d: %w", i, err)
		}
	}
	return hooks, nil
}

func hasher(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "sha1":
		return sha1.New, nil
	case "sha224":
		return sha256.New224, nil
	case "sha256":
		return sha256.New, nil
	case "sha384":
		return sha512.New384, nil
	case "sha512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
}

// Sign returns the hex HMAC of the form encoding of data.
func Sign(data url.Values, key, algorithm string) (string, error) {
	h, err := hasher(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(h, []byte(key))
	mac.Write([]byte(data.Encode()))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches data. Comparison is constant time.
func Verify(signature string, data url.Values, key, algorithm string) bool {
	expected, err := Sign(data, key, algorithm)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Payload builds the notification body for a finished job.
func Payload(snap capture.Snapshot, userID, userData string) url.Values {
	v := url.Values{}
	v.Set("jobid", snap.ID)
	v.Set("url", snap.CaptureURL)
	if userID != "" {
		v.Set("userid", userID)
	}
	if userData != "" {
		v.Set("userDataField", userData)
	}
	if snap.Succeeded() {
		v.Set("status", "done")
	} else {
		v.Set("status", "error")
		v.Set("error", string(snap.Error))
	}
	if snap.AccessURL != "" {
		v.Set("accessUrl", snap.AccessURL)
	}
	v.Set("size", strconv.FormatInt(snap.Size, 10))
	return v
}

// Notifier posts job results to every configured hook.
type Notifier struct {
	hooks  []Hook
	userID string
	http   *http.Client
	logger ports.Logger
}

// NewNotifier creates a Notifier. userID is included in every payload when set.
func NewNotifier(hooks []Hook, userID string, logger ports.Logger) *Notifier {
	return &Notifier{
		hooks:  hooks,
		userID: userID,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger.WithComponent("webhook"),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (n *Notifier) WithHTTPClient(c *http.Client) *Notifier {
	n.http = c
	return n
}

// Notify posts snap to every hook. Failures are collected, not short-circuited.
func (n *Notifier) Notify(ctx context.Context, snap capture.Snapshot) error {
	var errs []error
	for _, hook := range n.hooks {
		if err := n.post(ctx, hook, snap); err != nil {
			n.logger.Warn("Webhook %s failed: %v", hook.CallbackURL, err)
			errs = append(errs, err)
			continue
		}
		n.logger.Debug("Webhook %s notified", hook.CallbackURL)
	}
	return errors.Join(errs...)
}

func (n *Notifier) post(ctx context.Context, hook Hook, snap capture.Snapshot) error {
	data := Payload(snap, n.userID, hook.UserDataField)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.CallbackURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if hook.SigningKey != "" {
		sig, err := Sign(data, hook.SigningKey, hook.SigningKeyAlgorithm)
		if err != nil {
			return err
		}
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", hook.CallbackURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: status %d", hook.CallbackURL, resp.StatusCode)
	}
	return nil
}
