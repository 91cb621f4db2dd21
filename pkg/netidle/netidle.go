// Package netidle detects network idleness by debouncing activity events.
package netidle

import (
	"context"
	"time"
)

// Wait blocks until window has elapsed without a value arriving on events.
// Every event restarts the countdown. A closed events channel stops
// restarting it, so Wait then returns after one more quiet window.
// There is no upper bound; callers impose their own ceiling through ctx.
func Wait(ctx context.Context, events <-chan struct{}, window time.Duration) error {
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(window)
		case <-timer.C:
			return nil
		}
	}
}

// Source produces network activity notifications for a page.
type Source interface {
	NetworkActivity() (<-chan struct{}, func())
}

// WaitSource subscribes to src for the duration of the wait.
func WaitSource(ctx context.Context, src Source, window time.Duration) error {
	events, unsubscribe := src.NetworkActivity()
	defer unsubscribe()
	return Wait(ctx, events, window)
}
