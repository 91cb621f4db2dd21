// Package nullsink provides a no-op debug sink implementation.
package nullsink

import "github.com/user/capturedriver/pkg/ports"

// Sink is a no-op implementation of ports.DebugSink.
// It discards all debug output.
type Sink struct{}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

// SaveScreenshot does nothing.
func (s *Sink) SaveScreenshot(name string, data []byte) error {
	return nil
}

// SaveJobJSON does nothing.
func (s *Sink) SaveJobJSON(data []byte) error {
	return nil
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
