// Package capture holds the state of a single capture job.
package capture

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/capturedriver/pkg/ports"
)

// Phase is a step of the capture lifecycle.
type Phase string

const (
	PhaseInit            Phase = "init"
	PhaseSessionAcquired Phase = "session_acquired"
	PhaseNavigated       Phase = "navigated"
	PhaseBehaviorRun     Phase = "behavior_run"
	PhaseSessionClosed   Phase = "session_closed"
	PhasePendingAwaited  Phase = "pending_awaited"
	PhaseCommitted       Phase = "committed"
	PhaseDone            Phase = "done"
	PhaseSkipped         Phase = "skipped"
	PhaseErrored         Phase = "errored"
)

// Terminal reports whether no further transitions can happen.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseSkipped || p == PhaseErrored
}

// Snapshot is an immutable copy of a job's observable state.
// Its JSON form is what the status endpoint and the capture channel publish.
type Snapshot struct {
	ID          string    `json:"id"`
	CaptureURL  string    `json:"url"`
	EntryURL    string    `json:"entryUrl,omitempty"`
	StorageURL  string    `json:"-"`
	AccessURL   string    `json:"accessUrl,omitempty"`
	Phase       Phase     `json:"phase"`
	Status      string    `json:"status"`
	Error       ErrorKind `json:"error,omitempty"`
	Done        bool      `json:"done"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Type        string    `json:"type,omitempty"`
	Size        int64     `json:"size"`
	CurrentSize int64     `json:"-"`
	PendingSize int64     `json:"-"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
}

// Succeeded reports whether the job finished without a fatal error.
func (s Snapshot) Succeeded() bool {
	return s.Done && s.Error == KindNone
}

// Job is the mutable lifecycle record of one capture request.
// All methods are safe for concurrent use; readers take Snapshots.
type Job struct {
	mu         sync.Mutex
	snap       Snapshot
	screenshot []byte
	watchers   map[int]chan Snapshot
	nextWatch  int
}

// NewJob creates a job for captureURL with a fresh id.
func NewJob(captureURL string) *Job {
	return NewJobWithID(uuid.NewString(), captureURL)
}

// NewJobWithID creates a job with a caller supplied id.
func NewJobWithID(id, captureURL string) *Job {
	return &Job{
		snap: Snapshot{
			ID:         id,
			CaptureURL: captureURL,
			Phase:      PhaseInit,
			StartedAt:  time.Now(),
		},
		watchers: make(map[int]chan Snapshot),
	}
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	if raw == "" {
		return ErrNoURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

// ID returns the job id.
func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.ID
}

// Snapshot returns a copy of the current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap
}

// SetStatus updates the human readable phase label.
func (j *Job) SetStatus(status string) {
	j.update(func(s *Snapshot) { s.Status = status })
}

// SetPhase records a lifecycle transition. Terminal phases are never left.
func (j *Job) SetPhase(p Phase) {
	j.update(func(s *Snapshot) {
		if s.Phase.Terminal() {
			return
		}
		s.Phase = p
	})
}

// SetStorageURL sets the archive destination.
func (j *Job) SetStorageURL(u string) {
	j.update(func(s *Snapshot) { s.StorageURL = u })
}

// SetEntryURL records the URL actually navigated to.
func (j *Job) SetEntryURL(u string) {
	j.update(func(s *Snapshot) { s.EntryURL = u })
}

// SetEmbedMeta records metadata learned from an embed lookup.
func (j *Job) SetEmbedMeta(meta ports.EmbedMeta) {
	j.update(func(s *Snapshot) {
		s.Width = meta.Width
		s.Height = meta.Height
		s.Type = meta.Type
	})
}

// SetAccessURL records the public URL of the stored archive.
func (j *Job) SetAccessURL(u string) {
	j.update(func(s *Snapshot) { s.AccessURL = u })
}

// SetSizes records the byte counters reported by the recording proxy.
func (j *Job) SetSizes(current, pending int64) {
	j.update(func(s *Snapshot) {
		s.CurrentSize = current
		s.PendingSize = pending
		s.Size = current + pending
	})
}

// SetScreenshot stores the most recent pre-interaction screenshot.
func (j *Job) SetScreenshot(png []byte) {
	j.mu.Lock()
	j.screenshot = png
	j.mu.Unlock()
}

// Screenshot returns the most recent screenshot, or nil.
func (j *Job) Screenshot() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.screenshot
}

// Fail moves the job to the errored state. The first fatal kind wins.
func (j *Job) Fail(kind ErrorKind) {
	j.update(func(s *Snapshot) {
		if s.Done || s.Error != KindNone {
			return
		}
		s.Error = kind
		s.Phase = PhaseErrored
	})
}

// Finish marks the job done. Done never reverts.
func (j *Job) Finish(status string) {
	j.update(func(s *Snapshot) {
		if s.Done {
			return
		}
		s.Done = true
		s.Status = status
		s.FinishedAt = time.Now()
		if s.Error == KindNone && s.Phase != PhaseSkipped {
			s.Phase = PhaseDone
		}
	})
	j.closeWatchers()
}

// Skip marks a run that had nothing to capture. It is not an error.
func (j *Job) Skip(status string) {
	j.update(func(s *Snapshot) { s.Phase = PhaseSkipped })
	j.Finish(status)
}

// Watch returns a channel that receives the latest snapshot after every change.
// Slow readers only see the most recent state. The channel is closed once the
// job is done or the returned stop function is called.
func (j *Job) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	j.mu.Lock()
	if j.snap.Done {
		ch <- j.snap
		close(ch)
		j.mu.Unlock()
		return ch, func() {}
	}
	id := j.nextWatch
	j.nextWatch++
	j.watchers[id] = ch
	ch <- j.snap
	j.mu.Unlock()

	stop := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if w, ok := j.watchers[id]; ok {
			delete(j.watchers, id)
			close(w)
		}
	}
	return ch, stop
}

func (j *Job) update(fn func(s *Snapshot)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.snap)
	for _, ch := range j.watchers {
		publish(ch, j.snap)
	}
}

func (j *Job) closeWatchers() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for id, ch := range j.watchers {
		delete(j.watchers, id)
		close(ch)
	}
}

// publish replaces any unread snapshot with s.
func publish(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
