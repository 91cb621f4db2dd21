// Package orchestrator drives one capture job through all pipeline stages.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	neturl "net/url"
	"time"

	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/pipeline"
	"github.com/user/capturedriver/pkg/ports"
	"github.com/user/capturedriver/pkg/stages/commit"
)

// exitTimeout bounds the best-effort exit notification to the proxy.
const exitTimeout = 5 * time.Second

// Config contains all configuration for a capture run.
type Config struct {
	Browser ports.ConnectOptions

	// Navigation
	DisableCache      bool
	UseEmbed          bool // Navigate to an embed wrapper page when one exists
	IncludeSourcePage bool // Also load the original page after an embed
	PageLoadTimeout   time.Duration

	// Behavior
	AutoScroll      bool
	BehaviorTimeout time.Duration
	VideoTimeout    time.Duration
	ScrollTimeout   time.Duration

	// Settle
	SettleTimeout time.Duration

	// Commit
	ArchivePath    string
	DestURL        string
	AccessTemplate string

	// ExitFile is created before the browser is closed, to tell sidecar
	// containers sharing the volume that browsing is over.
	ExitFile string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Browser: ports.ConnectOptions{
			Host:          "localhost",
			Port:          9222,
			RetryInterval: 500 * time.Millisecond,
		},
		IncludeSourcePage: true,
		PageLoadTimeout:   60 * time.Second,
		AutoScroll:        true,
		BehaviorTimeout:   30 * time.Second,
		VideoTimeout:      2 * time.Minute,
		ScrollTimeout:     30 * time.Second,
		SettleTimeout:     15 * time.Second,
		ArchivePath:       "/tmp/out/archive.wacz",
	}
}

// Notifier is told about every finished job.
type Notifier interface {
	Notify(ctx context.Context, snap capture.Snapshot) error
}

// Stages bundles the pipeline stages a Driver sequences.
type Stages struct {
	Navigate pipeline.Stage[pipeline.NavigateInput, pipeline.NavigateResult]
	Interact pipeline.Stage[pipeline.InteractInput, pipeline.InteractResult]
	Settle   pipeline.Stage[pipeline.SettleInput, pipeline.SettleResult]
	Commit   pipeline.Stage[pipeline.CommitInput, pipeline.CommitResult]
}

// Driver runs capture jobs. A Driver owns one browser session at a time.
type Driver struct {
	browser ports.Browser
	stages  Stages
	proxy   ports.RecordingProxy
	fs      ports.FileSystem
	sink    ports.DebugSink
	logger  ports.Logger

	// Notifier, if set, receives the final snapshot of every job.
	Notifier Notifier
}

// New creates a new Driver. proxy may be nil when no recording proxy is used.
func New(browser ports.Browser, stages Stages, proxy ports.RecordingProxy, fs ports.FileSystem, sink ports.DebugSink, logger ports.Logger) *Driver {
	return &Driver{
		browser: browser,
		stages:  stages,
		proxy:   proxy,
		fs:      fs,
		sink:    sink,
		logger:  logger,
	}
}

// RunResult contains the outcome of a capture run for reporting.
type RunResult struct {
	Job      capture.Snapshot
	ExitCode int
	Duration time.Duration

	Navigate pipeline.NavigateResult
	Interact pipeline.InteractResult
	Settle   pipeline.SettleResult
	Commit   pipeline.CommitResult
}

// Run executes the capture lifecycle for job. It never returns an error:
// the outcome is on the final snapshot and in the exit code, which is 0 only
// for a committed (and, when configured, uploaded) archive or a skipped run.
// The browser session is closed on every path once acquired.
func (d *Driver) Run(ctx context.Context, job *capture.Job, config Config) RunResult {
	start := time.Now()
	var result RunResult

	url := job.Snapshot().CaptureURL
	if err := capture.ValidateURL(url); err != nil {
		if errors.Is(err, capture.ErrNoURL) {
			job.Skip("No URL, exiting...")
			d.logger.Info("No URL, exiting...")
			return d.finish(ctx, job, &result, start)
		}
		d.logger.Error("Invalid capture URL %q: %s", url, err)
		job.Fail(capture.KindInvalidURL)
		return d.finish(ctx, job, &result, start)
	}

	d.logger.Info("Capturing %s", url)
	d.capture(ctx, job, config, &result)
	return d.finish(ctx, job, &result, start)
}

func (d *Driver) capture(ctx context.Context, job *capture.Job, config Config, result *RunResult) {
	url := job.Snapshot().CaptureURL

	job.SetStatus("Loading Browser...")
	if err := d.browser.Connect(ctx, config.Browser); err != nil {
		d.fail(job, err)
		return
	}
	job.SetPhase(capture.PhaseSessionAcquired)
	d.logger.Info("Browser session acquired")

	closed := false
	closeSession := func() {
		if closed {
			return
		}
		closed = true
		d.closeSession(job, config)
	}
	defer closeSession()

	nav, err := d.stages.Navigate.Execute(ctx, pipeline.NavigateInput{
		Job:          job,
		URL:          url,
		DisableCache: config.DisableCache,
		UseEmbed:     config.UseEmbed,
		Timeout:      config.PageLoadTimeout,
	})
	result.Navigate = nav
	if err != nil {
		d.fail(job, err)
		return
	}
	job.SetPhase(capture.PhaseNavigated)

	interact, err := d.stages.Interact.Execute(ctx, pipeline.InteractInput{
		Job:             job,
		URL:             url,
		BehaviorTimeout: config.BehaviorTimeout,
		VideoTimeout:    config.VideoTimeout,
		ScrollTimeout:   config.ScrollTimeout,
		AutoScroll:      config.AutoScroll,
		Embedded:        nav.Embedded,
	})
	result.Interact = interact
	if err != nil {
		d.fail(job, err)
		return
	}

	if nav.Embedded && config.IncludeSourcePage {
		d.logger.Info("Capturing regular page")
		if _, err := d.stages.Navigate.Execute(ctx, pipeline.NavigateInput{
			Job:     job,
			URL:     url,
			Timeout: config.PageLoadTimeout,
		}); err != nil {
			d.fail(job, err)
			return
		}
		// The archive is still committed for the embed wrapper.
		job.SetEntryURL(nav.EntryURL)
	}
	job.SetPhase(capture.PhaseBehaviorRun)

	closeSession()

	settle, err := d.stages.Settle.Execute(ctx, pipeline.SettleInput{
		Job:     job,
		Timeout: config.SettleTimeout,
	})
	result.Settle = settle
	if err != nil {
		d.fail(job, err)
		return
	}
	job.SetPhase(capture.PhasePendingAwaited)

	entry := nav.EntryURL
	if entry == "" {
		entry = url
	}
	committed, err := d.stages.Commit.Execute(ctx, pipeline.CommitInput{
		Job:            job,
		EntryURL:       entry,
		ArchivePath:    config.ArchivePath,
		DestURL:        config.DestURL,
		DownloadName:   downloadName(url),
		AccessTemplate: config.AccessTemplate,
	})
	result.Commit = committed
	if err != nil {
		d.fail(job, err)
		return
	}
	job.SetStorageURL(config.DestURL)
	if committed.Committed {
		job.SetPhase(capture.PhaseCommitted)
	}
}

// closeSession signals the exit file and releases the browser. Errors are
// only logged.
func (d *Driver) closeSession(job *capture.Job, config Config) {
	if config.ExitFile != "" && d.fs != nil {
		d.logger.Info("Creating exit file: %s", config.ExitFile)
		if err := d.fs.Touch(config.ExitFile); err != nil {
			d.logger.Warn("Failed to create exit file: %s", err)
		}
	}

	d.logger.Debug("Closing browser")
	if err := d.browser.Close(); err != nil {
		d.logger.Warn("Failed to close browser: %s", err)
	}
	job.SetPhase(capture.PhaseSessionClosed)
}

func (d *Driver) fail(job *capture.Job, err error) {
	kind := capture.KindOf(err)
	if kind == capture.KindNone {
		kind = capture.KindInternal
		if errors.Is(err, context.DeadlineExceeded) {
			kind = capture.KindCanceled
		}
	}
	d.logger.Error("Capture failed (%s): %s", kind, err)
	job.Fail(kind)
}

// finish notifies the proxy and any notifier, then reports. It runs with a
// fresh context so a cancelled job still says goodbye.
func (d *Driver) finish(ctx context.Context, job *capture.Job, result *RunResult, start time.Time) RunResult {
	bg := context.WithoutCancel(ctx)

	if d.proxy != nil && job.Snapshot().Phase != capture.PhaseSkipped {
		ectx, cancel := context.WithTimeout(bg, exitTimeout)
		if err := d.proxy.Exit(ectx); err != nil {
			d.logger.Debug("Proxy exit notification failed: %s", err)
		}
		cancel()
	}

	snap := job.Snapshot()
	if snap.Error != capture.KindNone {
		job.Finish("Failed: " + string(snap.Error))
	} else {
		job.Finish("Done!")
	}
	snap = job.Snapshot()

	if d.Notifier != nil && snap.Phase != capture.PhaseSkipped {
		if err := d.Notifier.Notify(bg, snap); err != nil {
			d.logger.Warn("Failed to send notification: %s", err)
		}
	}

	if d.sink != nil && d.sink.Enabled() {
		if data, err := json.MarshalIndent(snap, "", "  "); err == nil {
			if err := d.sink.SaveJobJSON(data); err != nil {
				d.logger.Debug("Failed to save job JSON: %s", err)
			}
		}
	}

	result.Job = snap
	result.Duration = time.Since(start)
	if snap.Succeeded() {
		result.ExitCode = 0
		d.logger.Info("Capture finished in %d ms", result.Duration.Milliseconds())
	} else {
		result.ExitCode = 1
		d.logger.Error("Capture failed: %s", snap.Error)
	}
	return *result
}

func downloadName(captureURL string) string {
	u, err := neturl.Parse(captureURL)
	if err != nil {
		return "archive.wacz"
	}
	return commit.DownloadName(u.Hostname(), u.Port(), time.Now())
}
