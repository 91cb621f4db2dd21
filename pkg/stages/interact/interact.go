// Package interact implements the behavior stage: scripted interactions,
// media playback waits and an auto-scroll pass.
package interact

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/capturedriver/pkg/behavior"
	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/pipeline"
	"github.com/user/capturedriver/pkg/ports"
)

// Default ceilings.
const (
	DefaultBehaviorTimeout = 30 * time.Second
	DefaultVideoTimeout    = 2 * time.Minute
	DefaultScrollTimeout   = 30 * time.Second

	// DefaultSnapshotTimeout bounds one embed screenshot.
	DefaultSnapshotTimeout = 5 * time.Second
)

// EmbedSelector is the element wrapping an embed on the wrapper page.
const EmbedSelector = "#embedArchiveDiv"

const autoScrollScript = `new Promise((resolve) => {
	let last = -1;
	const step = () => {
		window.scrollBy(0, Math.max(window.innerHeight / 2, 200));
		const y = window.scrollY;
		if (y === last || window.innerHeight + y >= document.body.scrollHeight) {
			window.scrollTo(0, 0);
			resolve(true);
			return;
		}
		last = y;
		setTimeout(step, 250);
	};
	step();
})`

// Stage runs the behavior phase against the loaded page.
type Stage struct {
	browser    ports.Browser
	dispatcher *behavior.Dispatcher
	proxy      ports.RecordingProxy
	sink       ports.DebugSink
	logger     ports.Logger

	// Timing overrides the routine waits. Zero means production defaults.
	Timing behavior.Timing

	// SnapshotTimeout bounds each embed screenshot (default: 5s).
	SnapshotTimeout time.Duration
}

// New creates a new interact stage. proxy may be nil.
func New(browser ports.Browser, dispatcher *behavior.Dispatcher, proxy ports.RecordingProxy, sink ports.DebugSink, logger ports.Logger) *Stage {
	return &Stage{
		browser:    browser,
		dispatcher: dispatcher,
		proxy:      proxy,
		sink:       sink,
		logger:     logger.WithComponent("interact"),
	}
}

// Execute runs the matching behavior, waits for started media to end and
// scrolls the page once. Failures are absorbed; only cancellation of ctx is
// returned.
func (s *Stage) Execute(ctx context.Context, input pipeline.InteractInput) (pipeline.InteractResult, error) {
	var result pipeline.InteractResult
	job := input.Job

	behaviorTimeout := orDefault(input.BehaviorTimeout, DefaultBehaviorTimeout)
	videoTimeout := orDefault(input.VideoTimeout, DefaultVideoTimeout)
	scrollTimeout := orDefault(input.ScrollTimeout, DefaultScrollTimeout)

	job.SetStatus("Running Behavior...")

	// Subscribe before interacting so players created by a click are seen.
	var media *mediaTracker
	if rule, ok := s.dispatcher.Rules().Match(input.URL); ok && rule.Video {
		events, unsubscribe, err := s.browser.MediaEvents(ctx)
		if err != nil {
			s.logger.Warn("Failed to watch media players: %s", err)
		} else {
			media = trackMedia(events)
			defer unsubscribe()
		}
	}

	env := behavior.Env{
		Browser: s.browser,
		Logger:  s.logger,
		Timing:  s.Timing,
		Status:  job.SetStatus,
	}
	if input.Embedded {
		env.Snapshot = s.snapshotter(job, &result)
	}

	bctx, cancel := context.WithTimeout(ctx, behaviorTimeout)
	result.Behavior = s.dispatcher.Run(bctx, env, input.URL)
	cancel()
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if result.Behavior.Handled {
		s.logger.Debug("Behavior %s done (idle wait requested: %t)", result.Behavior.Rule, result.Behavior.AwaitIdle)
	}

	if media != nil {
		started := media.started()
		if started > 0 {
			job.SetStatus("Waiting for Video...")
			s.logger.Info("Waiting for %d video player(s) to finish", started)
			if !media.waitEnded(ctx, videoTimeout) {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				result.VideoTimedOut = true
				s.logger.Warn("Video wait timed out after %s", videoTimeout)
			}
		}
		result.PlayersStarted = media.started()
		result.PlayersEnded = media.ended()
	}

	if input.AutoScroll {
		job.SetStatus("Scrolling Page...")
		sctx, cancel := context.WithTimeout(ctx, scrollTimeout)
		var done bool
		err := s.browser.Evaluate(sctx, autoScrollScript, &done)
		cancel()
		switch {
		case ctx.Err() != nil:
			return result, ctx.Err()
		case err != nil:
			s.logger.Warn("Auto-scroll stopped: %s", err)
		default:
			result.Scrolled = done
		}
	}

	return result, nil
}

// snapshotter returns the routine hook that screenshots the embed element.
// The image is kept on the job, written to the debug sink and stored by the
// recording proxy next to the archive. Every failure is only logged.
func (s *Stage) snapshotter(job *capture.Job, result *pipeline.InteractResult) func(context.Context) {
	return func(ctx context.Context) {
		job.SetStatus("Taking Screenshot...")

		sctx, cancel := context.WithTimeout(ctx, orDefault(s.SnapshotTimeout, DefaultSnapshotTimeout))
		png, err := s.browser.Screenshot(sctx, EmbedSelector)
		cancel()
		if err != nil {
			s.logger.Warn("Failed to take screenshot: %s", err)
			return
		}
		result.Screenshots++
		job.SetScreenshot(png)

		if s.sink != nil && s.sink.Enabled() {
			name := fmt.Sprintf("screenshot-%02d.png", result.Screenshots)
			if err := s.sink.SaveScreenshot(name, png); err != nil {
				s.logger.Debug("Failed to save debug screenshot: %s", err)
			}
		}

		if s.proxy == nil {
			return
		}
		location, err := s.browser.Location(ctx)
		if err != nil {
			s.logger.Warn("Failed to read page location: %s", err)
			return
		}
		if err := s.proxy.PutCustomRecord(ctx, "screenshot:"+location, "image/png", png); err != nil {
			s.logger.Warn("Failed to store screenshot: %s", err)
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// mediaTracker follows player lifecycle events in the background.
type mediaTracker struct {
	mu       sync.Mutex
	starts   map[string]bool
	ends     map[string]bool
	changed  chan struct{}
	finished chan struct{}
}

func trackMedia(events <-chan ports.MediaEvent) *mediaTracker {
	m := &mediaTracker{
		starts:   make(map[string]bool),
		ends:     make(map[string]bool),
		changed:  make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
	go func() {
		defer close(m.finished)
		for ev := range events {
			m.mu.Lock()
			switch ev.Kind {
			case ports.PlayerStarted:
				m.starts[ev.PlayerID] = true
			case ports.PlayerEnded:
				m.ends[ev.PlayerID] = true
			}
			m.mu.Unlock()
			select {
			case m.changed <- struct{}{}:
			default:
			}
		}
	}()
	return m
}

func (m *mediaTracker) started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.starts)
}

func (m *mediaTracker) ended() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.starts {
		if m.ends[id] {
			n++
		}
	}
	return n
}

// waitEnded blocks until every started player has ended, or timeout passes.
func (m *mediaTracker) waitEnded(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if m.ended() == m.started() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case <-m.changed:
		case <-m.finished:
			// The event source is gone; nothing further will end.
			return m.ended() == m.started()
		}
	}
}
