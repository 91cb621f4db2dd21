package ports

// DebugSink abstracts debug output for intermediate capture results.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveScreenshot saves a PNG screenshot taken during a behavior.
	SaveScreenshot(name string, data []byte) error

	// SaveJobJSON saves the final job snapshot as JSON.
	SaveJobJSON(data []byte) error
}
