// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"sync"

	"github.com/user/capturedriver/pkg/ports"
)

// Browser is a mock implementation of ports.Browser.
type Browser struct {
	ConnectFunc      func(ctx context.Context, opts ports.ConnectOptions) error
	NavigateFunc     func(ctx context.Context, url string, opts ports.NavigateOptions) error
	DisableCacheFunc func(ctx context.Context) error
	LocationFunc     func(ctx context.Context) (string, error)
	FrameCountFunc   func(ctx context.Context) (int, error)
	WaitSelectorFunc func(ctx context.Context, frame int, selector string) error
	CountFunc        func(ctx context.Context, frame int, selector string) (int, error)
	ClickFunc        func(ctx context.Context, frame int, selector string) error
	ClickNthFunc     func(ctx context.Context, frame int, selector string, n int) error
	EvaluateFunc     func(ctx context.Context, script string, res interface{}) error
	ScreenshotFunc   func(ctx context.Context, selector string) ([]byte, error)
	MediaEventsFunc  func(ctx context.Context) (<-chan ports.MediaEvent, func(), error)
	CloseFunc        func() error

	// Network, if set, is returned by NetworkActivity.
	Network chan struct{}

	// Recorded calls for verification
	mu            sync.Mutex
	NavigateCalls []string
	Clicks        []Click
	CloseCalls    int
	Connected     bool
}

// Click records a call to Click or ClickNth.
type Click struct {
	Frame    int
	Selector string
	N        int
}

func (m *Browser) Connect(ctx context.Context, opts ports.ConnectOptions) error {
	if m.ConnectFunc != nil {
		if err := m.ConnectFunc(ctx, opts); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Connected = true
	m.mu.Unlock()
	return nil
}

func (m *Browser) Navigate(ctx context.Context, url string, opts ports.NavigateOptions) error {
	m.mu.Lock()
	m.NavigateCalls = append(m.NavigateCalls, url)
	m.mu.Unlock()
	if m.NavigateFunc != nil {
		return m.NavigateFunc(ctx, url, opts)
	}
	return nil
}

func (m *Browser) DisableCache(ctx context.Context) error {
	if m.DisableCacheFunc != nil {
		return m.DisableCacheFunc(ctx)
	}
	return nil
}

func (m *Browser) Location(ctx context.Context) (string, error) {
	if m.LocationFunc != nil {
		return m.LocationFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.NavigateCalls); n > 0 {
		return m.NavigateCalls[n-1], nil
	}
	return "about:blank", nil
}

func (m *Browser) FrameCount(ctx context.Context) (int, error) {
	if m.FrameCountFunc != nil {
		return m.FrameCountFunc(ctx)
	}
	return 1, nil
}

func (m *Browser) WaitSelector(ctx context.Context, frame int, selector string) error {
	if m.WaitSelectorFunc != nil {
		return m.WaitSelectorFunc(ctx, frame, selector)
	}
	return nil
}

func (m *Browser) Count(ctx context.Context, frame int, selector string) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, frame, selector)
	}
	return 0, nil
}

func (m *Browser) Click(ctx context.Context, frame int, selector string) error {
	m.mu.Lock()
	m.Clicks = append(m.Clicks, Click{Frame: frame, Selector: selector})
	m.mu.Unlock()
	if m.ClickFunc != nil {
		return m.ClickFunc(ctx, frame, selector)
	}
	return nil
}

func (m *Browser) ClickNth(ctx context.Context, frame int, selector string, n int) error {
	m.mu.Lock()
	m.Clicks = append(m.Clicks, Click{Frame: frame, Selector: selector, N: n})
	m.mu.Unlock()
	if m.ClickNthFunc != nil {
		return m.ClickNthFunc(ctx, frame, selector, n)
	}
	return nil
}

func (m *Browser) Evaluate(ctx context.Context, script string, res interface{}) error {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, script, res)
	}
	return nil
}

func (m *Browser) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if m.ScreenshotFunc != nil {
		return m.ScreenshotFunc(ctx, selector)
	}
	// Minimal PNG signature
	return []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, nil
}

func (m *Browser) NetworkActivity() (<-chan struct{}, func()) {
	if m.Network != nil {
		return m.Network, func() {}
	}
	return nil, func() {}
}

func (m *Browser) MediaEvents(ctx context.Context) (<-chan ports.MediaEvent, func(), error) {
	if m.MediaEventsFunc != nil {
		return m.MediaEventsFunc(ctx)
	}
	return make(chan ports.MediaEvent), func() {}, nil
}

func (m *Browser) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// ClickCount returns the number of recorded clicks.
func (m *Browser) ClickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Clicks)
}

// Closed returns how many times Close was called.
func (m *Browser) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}

var _ ports.Browser = (*Browser)(nil)
