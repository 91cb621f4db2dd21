// Package settle implements the stage that waits for the recording proxy
// to finish writing.
package settle

import (
	"context"
	"errors"
	"time"

	"github.com/user/capturedriver/pkg/pending"
	"github.com/user/capturedriver/pkg/pipeline"
	"github.com/user/capturedriver/pkg/ports"
)

// DefaultTimeout bounds the wait even if the proxy never converges.
const DefaultTimeout = 15 * time.Second

// Stage races the pending poller against a ceiling.
type Stage struct {
	proxy  ports.RecordingProxy
	logger ports.Logger

	// Interval and StableThreshold tune the poller; zero values keep its defaults.
	Interval        time.Duration
	StableThreshold *int
}

// New creates a new settle stage. A nil proxy makes the stage a no-op.
func New(proxy ports.RecordingProxy, logger ports.Logger) *Stage {
	return &Stage{
		proxy:  proxy,
		logger: logger.WithComponent("settle"),
	}
}

// Execute waits for pending writes to settle or for the ceiling, whichever
// comes first. Hitting the ceiling is not an error.
func (s *Stage) Execute(ctx context.Context, input pipeline.SettleInput) (pipeline.SettleResult, error) {
	var result pipeline.SettleResult
	if s.proxy == nil {
		result.Skipped = true
		return result, nil
	}

	job := input.Job
	job.SetStatus("Finishing Capture...")

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	poller := pending.New(s.proxy, s.logger)
	if s.Interval > 0 {
		poller.Interval = s.Interval
	}
	if s.StableThreshold != nil {
		poller.StableThreshold = *s.StableThreshold
	}
	poller.OnSample = func(sample ports.PendingSample) {
		result.Samples++
		result.Last = sample
		job.SetSizes(job.Snapshot().CurrentSize, sample.Size)
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := poller.AwaitSettled(pctx)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Settled = true
		s.logger.Debug("Pending writes settled after %d samples", result.Samples)
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("Pending writes did not settle within %s, continuing", timeout)
	default:
		return result, err
	}
	return result, nil
}
