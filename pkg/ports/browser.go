// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"
	"time"
)

// Browser abstracts one tab of a remotely controlled browser.
// A Browser is owned by exactly one capture job at a time.
type Browser interface {
	// Connect attaches to a browser that is already running on the given host.
	// It keeps retrying until the browser is reachable or ctx is cancelled.
	Connect(ctx context.Context, opts ConnectOptions) error

	// Navigate loads the specified URL and waits for opts.WaitUntil,
	// but no longer than opts.Timeout.
	Navigate(ctx context.Context, url string, opts NavigateOptions) error

	// DisableCache turns off the HTTP cache and bypasses service workers.
	DisableCache(ctx context.Context) error

	// Location returns the URL of the current document.
	Location(ctx context.Context) (string, error)

	// FrameCount returns the number of frames on the page, including the main frame.
	FrameCount(ctx context.Context) (int, error)

	// WaitSelector blocks until selector matches an element in the given frame.
	// Frame 0 is the main frame, frames 1..n are iframes in document order.
	WaitSelector(ctx context.Context, frame int, selector string) error

	// Count returns how many elements match selector in the given frame.
	Count(ctx context.Context, frame int, selector string) (int, error)

	// Click clicks the first element matching selector in the given frame.
	Click(ctx context.Context, frame int, selector string) error

	// ClickNth clicks the n-th (zero based) element matching selector in the given frame.
	ClickNth(ctx context.Context, frame int, selector string, n int) error

	// Evaluate runs a script in the main frame, awaiting a returned promise,
	// and stores the result in res (which may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error

	// Screenshot captures a PNG of the first element matching selector.
	Screenshot(ctx context.Context, selector string) ([]byte, error)

	// NetworkActivity returns a channel that receives a value every time
	// a network request finishes loading, and a function to unsubscribe.
	NetworkActivity() (<-chan struct{}, func())

	// MediaEvents returns a channel of media player lifecycle events
	// and a function to unsubscribe.
	MediaEvents(ctx context.Context) (<-chan MediaEvent, func(), error)

	// Close detaches from the browser. It is safe to call more than once
	// and tolerates a browser that has already gone away.
	Close() error
}

// ConnectOptions configures how a Browser attaches to the remote endpoint.
type ConnectOptions struct {
	Host          string        // Browser host name, resolved through DNS
	Port          int           // DevTools control port (default: 9222)
	RetryInterval time.Duration // Delay between attach attempts (default: 500ms)
}

// WaitCondition names the page state Navigate waits for.
type WaitCondition string

const (
	// WaitLoad waits for the load event.
	WaitLoad WaitCondition = "load"
	// WaitDOMContentLoaded waits for the DOMContentLoaded event.
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	// WaitNetworkIdle waits for the load event followed by a quiet network.
	WaitNetworkIdle WaitCondition = "networkidle"
)

// NavigateOptions configures a single navigation.
type NavigateOptions struct {
	Timeout   time.Duration
	WaitUntil WaitCondition
	IdleTime  time.Duration // Quiet window used by WaitNetworkIdle
}

// MediaEventKind identifies a media player lifecycle transition.
type MediaEventKind int

const (
	// PlayerCreated is emitted when the page creates a media player.
	PlayerCreated MediaEventKind = iota
	// PlayerStarted is emitted when a player begins playback.
	PlayerStarted
	// PlayerEnded is emitted when a player reaches the end of its media.
	PlayerEnded
)

// String returns the string representation of the event kind.
func (k MediaEventKind) String() string {
	switch k {
	case PlayerCreated:
		return "created"
	case PlayerStarted:
		return "started"
	case PlayerEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MediaEvent is a single media player lifecycle notification.
type MediaEvent struct {
	PlayerID string
	Kind     MediaEventKind
}
