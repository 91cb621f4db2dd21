// Package pending decides when the recording proxy has finished writing.
package pending

import (
	"context"
	"time"

	"github.com/user/capturedriver/pkg/ports"
)

// DefaultStableThreshold is the largest in-flight count accepted as settled
// when it stays unchanged between two samples.
const DefaultStableThreshold = 2

// DefaultInterval is the delay between the two samples of a pair.
const DefaultInterval = time.Second

// Source provides pending samples.
type Source interface {
	Pending(ctx context.Context) (ports.PendingSample, error)
}

// Poller samples a Source in pairs until the recording settles.
type Poller struct {
	source Source
	logger ports.Logger

	// Interval between the first and second sample of a pair.
	Interval time.Duration

	// StableThreshold accepts a non-zero in-flight count that is unchanged
	// across a pair, with no size growth, as settled. Long-poll connections
	// can hold a few writes open forever. A negative value requires an
	// exact drain to zero.
	StableThreshold int

	// OnSample, if set, observes every sample taken.
	OnSample func(ports.PendingSample)
}

// New creates a Poller with the default interval and threshold.
func New(source Source, logger ports.Logger) *Poller {
	return &Poller{
		source:          source,
		logger:          logger.WithComponent("pending"),
		Interval:        DefaultInterval,
		StableThreshold: DefaultStableThreshold,
	}
}

// AwaitSettled blocks until two consecutive samples show the proxy has settled.
// Sampling failures are logged and retried; the only way out without settling
// is cancellation of ctx, so callers race it against their own ceiling.
func (p *Poller) AwaitSettled(ctx context.Context) error {
	for {
		first, err := p.sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := p.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		if err := p.sleep(ctx); err != nil {
			return err
		}

		second, err := p.sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if Settled(first, second, p.StableThreshold) {
			p.logger.Debug("Pending writes settled: %d in flight, %d bytes", second.Count, second.Size)
			return nil
		}
	}
}

// Settled applies the two-sample convergence heuristic.
func Settled(first, second ports.PendingSample, stableThreshold int) bool {
	sizeStable := first.Size == second.Size

	if first.Count <= 0 && second.Count <= 0 && sizeStable {
		return true
	}

	if stableThreshold >= 0 && first.Count == second.Count && sizeStable && second.Count <= stableThreshold {
		return true
	}

	return false
}

func (p *Poller) sample(ctx context.Context) (ports.PendingSample, error) {
	s, err := p.source.Pending(ctx)
	if err != nil {
		p.logger.Warn("Failed to sample pending writes: %s", err)
		return s, err
	}
	p.logger.Debug("Pending: %d in flight, %d bytes", s.Count, s.Size)
	if p.OnSample != nil {
		p.OnSample(s)
	}
	return s, nil
}

func (p *Poller) sleep(ctx context.Context) error {
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
