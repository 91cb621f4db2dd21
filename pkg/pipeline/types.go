package pipeline

import (
	"time"

	"github.com/user/capturedriver/pkg/behavior"
	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/ports"
)

// =============================================================================
// Navigate Stage Types
// =============================================================================

// NavigateInput contains parameters for loading the capture target.
type NavigateInput struct {
	Job          *capture.Job
	URL          string
	DisableCache bool          // Turn off the HTTP cache and bypass service workers first
	UseEmbed     bool          // Try an embed wrapper page before the URL itself
	Timeout      time.Duration // Page load ceiling (default: 60s)
}

// NavigateResult describes what was loaded.
type NavigateResult struct {
	EntryURL string          // URL actually navigated to
	Embedded bool            // EntryURL is an embed wrapper page
	Meta     ports.EmbedMeta // Embed metadata, when Embedded
	LoadErr  error           // Soft navigation failure, already logged
}

// =============================================================================
// Interact Stage Types
// =============================================================================

// InteractInput contains parameters for the behavior phase.
type InteractInput struct {
	Job             *capture.Job
	URL             string        // URL the behavior rules are matched against
	BehaviorTimeout time.Duration // Ceiling for the dispatcher (default: 30s)
	VideoTimeout    time.Duration // Ceiling for started players to end (default: 2m)
	ScrollTimeout   time.Duration // Ceiling for the auto-scroll pass (default: 30s)
	AutoScroll      bool
	// Embedded reports that the page is an embed wrapper. Only then does the
	// embed element exist to be screenshotted.
	Embedded bool
}

// InteractResult summarizes the behavior phase.
type InteractResult struct {
	Behavior       behavior.Result
	PlayersStarted int
	PlayersEnded   int
	VideoTimedOut  bool
	Scrolled       bool
	Screenshots    int
}

// =============================================================================
// Settle Stage Types
// =============================================================================

// SettleInput contains parameters for awaiting pending proxy writes.
type SettleInput struct {
	Job     *capture.Job
	Timeout time.Duration // Hard ceiling raced against the poller (default: 15s)
}

// SettleResult reports whether the proxy settled before the ceiling.
type SettleResult struct {
	Skipped  bool // No proxy configured
	Settled  bool
	Samples  int
	Last     ports.PendingSample
	Duration time.Duration
}

// =============================================================================
// Commit Stage Types
// =============================================================================

// CommitInput contains parameters for finalizing and storing the archive.
type CommitInput struct {
	Job          *capture.Job
	EntryURL     string // URL the archive is committed for
	ArchivePath  string // Local archive file written by the proxy
	DestURL      string // Upload destination, empty to skip the upload
	DownloadName string // File name offered to people downloading the archive
	// AccessTemplate builds the public URL from {jobid}, {filename} and {download}.
	// When empty a presigned link is issued if the uploader supports it.
	AccessTemplate string
}

// CommitResult reports the outcome of the commit phase.
type CommitResult struct {
	Skipped   bool // No proxy configured, nothing to commit
	Committed bool
	Uploaded  bool
	AccessURL string
}
