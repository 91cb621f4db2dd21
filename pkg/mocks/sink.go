package mocks

import (
	"sync"

	"github.com/user/capturedriver/pkg/ports"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	Screenshots map[string][]byte
	JobJSON     []byte
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:     enabled,
		Screenshots: make(map[string][]byte),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveScreenshot(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Screenshots[name] = data
	return nil
}

func (m *DebugSink) SaveJobJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.JobJSON = data
	return nil
}

// ScreenshotCount returns how many screenshots were saved.
func (m *DebugSink) ScreenshotCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Screenshots)
}

var _ ports.DebugSink = (*DebugSink)(nil)

// NullSink is a no-op implementation of ports.DebugSink.
type NullSink struct{}

func (m *NullSink) Enabled() bool                                 { return false }
func (m *NullSink) SaveScreenshot(name string, data []byte) error { return nil }
func (m *NullSink) SaveJobJSON(data []byte) error                 { return nil }

var _ ports.DebugSink = (*NullSink)(nil)
