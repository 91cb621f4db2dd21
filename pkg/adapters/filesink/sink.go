// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/capturedriver/pkg/ports"
)

// Sink saves debug output to files.
type Sink struct {
	baseDir string
	fs      ports.FileSystem
}

// New creates a new FileSink.
func New(baseDir string, fs ports.FileSystem) *Sink {
	return &Sink{
		baseDir: baseDir,
		fs:      fs,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveScreenshot saves a behavior screenshot under screenshots/.
func (s *Sink) SaveScreenshot(name string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return fmt.Errorf("invalid screenshot name %q", name)
	}
	path := filepath.Join(s.baseDir, "screenshots", name)
	return s.fs.WriteFile(path, data)
}

// SaveJobJSON saves the final job snapshot.
func (s *Sink) SaveJobJSON(data []byte) error {
	path := filepath.Join(s.baseDir, "job.json")
	return s.fs.WriteFile(path, data)
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
