package summarizer

import (
	"time"

	"github.com/user/capturedriver/pkg/orchestrator"
)

// Summary contains everything worth reporting about one capture job.
type Summary struct {
	GeneratedAt time.Time

	Job      JobInfo
	Timing   TimingInfo
	Embed    EmbedInfo
	Behavior BehaviorInfo
	Archive  ArchiveInfo
}

// JobInfo identifies the job and its outcome.
type JobInfo struct {
	ID       string
	URL      string
	EntryURL string
	Phase    string
	Error    string
	ExitCode int
}

// TimingInfo contains timing measurements.
type TimingInfo struct {
	TotalDurationMs  int
	SettleDurationMs int
	SettleSamples    int
	Settled          bool
}

// EmbedInfo describes the embed wrapper, if one was captured.
type EmbedInfo struct {
	Embedded bool
	Type     string
	Width    int
	Height   int
}

// BehaviorInfo summarizes the interaction phase.
type BehaviorInfo struct {
	Rule           string
	PlayersStarted int
	PlayersEnded   int
	VideoTimedOut  bool
	Scrolled       bool
	Screenshots    int
}

// ArchiveInfo describes the committed archive.
type ArchiveInfo struct {
	Committed bool
	Uploaded  bool
	SizeBytes int64
	AccessURL string
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// FromResult builds a Summary from the outcome of a driver run.
func FromResult(r orchestrator.RunResult) *Summary {
	snap := r.Job
	return NewBuilder().
		WithJob(JobInfo{
			ID:       snap.ID,
			URL:      snap.CaptureURL,
			EntryURL: snap.EntryURL,
			Phase:    string(snap.Phase),
			Error:    string(snap.Error),
			ExitCode: r.ExitCode,
		}).
		WithTiming(TimingInfo{
			TotalDurationMs:  int(r.Duration.Milliseconds()),
			SettleDurationMs: int(r.Settle.Duration.Milliseconds()),
			SettleSamples:    r.Settle.Samples,
			Settled:          r.Settle.Settled,
		}).
		WithEmbed(EmbedInfo{
			Embedded: r.Navigate.Embedded,
			Type:     snap.Type,
			Width:    snap.Width,
			Height:   snap.Height,
		}).
		WithBehavior(BehaviorInfo{
			Rule:           r.Interact.Behavior.Rule,
			PlayersStarted: r.Interact.PlayersStarted,
			PlayersEnded:   r.Interact.PlayersEnded,
			VideoTimedOut:  r.Interact.VideoTimedOut,
			Scrolled:       r.Interact.Scrolled,
			Screenshots:    r.Interact.Screenshots,
		}).
		WithArchive(ArchiveInfo{
			Committed: r.Commit.Committed,
			Uploaded:  r.Commit.Uploaded,
			SizeBytes: snap.Size,
			AccessURL: snap.AccessURL,
		}).
		Build()
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithJob sets job identity and outcome.
func (b *Builder) WithJob(job JobInfo) *Builder {
	b.summary.Job = job
	return b
}

// WithTiming sets timing information.
func (b *Builder) WithTiming(timing TimingInfo) *Builder {
	b.summary.Timing = timing
	return b
}

// WithEmbed sets embed information.
func (b *Builder) WithEmbed(embed EmbedInfo) *Builder {
	b.summary.Embed = embed
	return b
}

// WithBehavior sets behavior phase information.
func (b *Builder) WithBehavior(behavior BehaviorInfo) *Builder {
	b.summary.Behavior = behavior
	return b
}

// WithArchive sets archive information.
func (b *Builder) WithArchive(archive ArchiveInfo) *Builder {
	b.summary.Archive = archive
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
