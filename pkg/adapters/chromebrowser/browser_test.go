package chromebrowser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/capturedriver/pkg/adapters/logger"
	"github.com/user/capturedriver/pkg/ports"
)

func TestPickPageTarget(t *testing.T) {
	tests := []struct {
		name    string
		targets []targetInfo
		wantID  string
		wantOK  bool
	}{
		{"empty", nil, "", false},
		{"workers only", []targetInfo{{ID: "w1", Type: "service_worker"}}, "", false},
		{"first page wins", []targetInfo{
			{ID: "w1", Type: "service_worker"},
			{ID: "p1", Type: "page"},
			{ID: "p2", Type: "page"},
		}, "p1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := pickPageTarget(tt.targets)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("pickPageTarget() = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestMediaKind(t *testing.T) {
	tests := []struct {
		value  string
		want   ports.MediaEventKind
		wantOK bool
	}{
		{"kPlay", ports.PlayerStarted, true},
		{"kEnded", ports.PlayerEnded, true},
		{"kPause", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := mediaKind(tt.value)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("mediaKind(%q) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestEndpointURL(t *testing.T) {
	if got := endpointURL("10.0.0.5", 9222); got != "http://10.0.0.5:9222" {
		t.Errorf("unexpected endpoint %q", got)
	}
	if got := endpointURL("::1", 9222); got != "http://[::1]:9222" {
		t.Errorf("unexpected ipv6 endpoint %q", got)
	}
}

func TestResolveHost_IPLiteral(t *testing.T) {
	ip, err := resolveHost(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip != "127.0.0.1" {
		t.Errorf("expected literal to pass through, got %q", ip)
	}
}

func TestBrowser_ConnectRetriesUntilCancelled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	b := New(logger.NewNoop())
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := b.Connect(ctx, ports.ConnectOptions{
		Host:          u.Hostname(),
		Port:          port,
		RetryInterval: 20 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if hits.Load() < 2 {
		t.Errorf("expected repeated attach attempts, got %d", hits.Load())
	}
}

func TestBrowser_NotConnected(t *testing.T) {
	b := New(logger.NewNoop())
	ctx := context.Background()

	if _, err := b.Location(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := b.Navigate(ctx, "https://example.com", ports.NavigateOptions{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestBrowser_CloseIsIdempotent(t *testing.T) {
	b := New(logger.NewNoop())
	events, _ := b.NetworkActivity()

	if err := b.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, ok := <-events; ok {
		t.Error("expected subscriptions to be closed")
	}
}

func TestHub_FanOut(t *testing.T) {
	h := newHub[int]()
	a, stopA := h.subscribe()
	c, stopC := h.subscribe()
	defer stopC()

	h.broadcast(7)
	if v := <-a; v != 7 {
		t.Errorf("subscriber a got %d", v)
	}
	if v := <-c; v != 7 {
		t.Errorf("subscriber c got %d", v)
	}

	stopA()
	stopA()
	if _, ok := <-a; ok {
		t.Error("expected a to be closed after unsubscribe")
	}

	// Full buffers drop instead of blocking
	for i := 0; i < 200; i++ {
		h.broadcast(i)
	}
}
