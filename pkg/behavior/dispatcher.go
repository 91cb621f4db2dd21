// Package behavior runs the page interactions needed to surface dynamic
// content of known embeddable types before the page is archived.
package behavior

import (
	"context"
	"time"

	"github.com/user/capturedriver/pkg/netidle"
	"github.com/user/capturedriver/pkg/ports"
)

// DefaultIdleWindow is the quiet period awaited after a routine has run.
const DefaultIdleWindow = 5 * time.Second

// Env is what a routine may touch while it runs.
type Env struct {
	Browser ports.Browser
	Logger  ports.Logger
	Timing  Timing

	// Status, if set, publishes a human readable progress label.
	Status func(string)

	// Snapshot, if set, records the pre-interaction visual state.
	Snapshot func(ctx context.Context)
}

func (e Env) status(s string) {
	if e.Status != nil {
		e.Status(s)
	}
}

func (e Env) snapshot(ctx context.Context) {
	if e.Snapshot != nil {
		e.Snapshot(ctx)
	}
}

// Routine performs the interaction for one content type. It handles its own
// failures and reports whether the page should be left to go quiet afterwards.
type Routine func(ctx context.Context, env Env) bool

// Result describes what the dispatcher did for a URL.
type Result struct {
	Handled bool   // A rule matched and its routine ran
	Rule    string // Name of the matched rule
	Video   bool   // The matched rule is video bearing
	// AwaitIdle is the routine's own answer. The dispatcher waits for network
	// idleness regardless; the value is kept for logging.
	AwaitIdle bool
}

// Dispatcher maps capture URLs to interaction routines.
type Dispatcher struct {
	rules      *RuleSet
	logger     ports.Logger
	IdleWindow time.Duration
}

// NewDispatcher creates a dispatcher over rules.
func NewDispatcher(rules *RuleSet, logger ports.Logger) *Dispatcher {
	return &Dispatcher{
		rules:      rules,
		logger:     logger.WithComponent("behavior"),
		IdleWindow: DefaultIdleWindow,
	}
}

// Rules returns the rule set in use.
func (d *Dispatcher) Rules() *RuleSet {
	return d.rules
}

// Run executes the routine for the rule matching target, then waits for the
// network to go quiet. A URL with no rule is left untouched. Run never fails:
// interaction problems are logged, and the caller bounds the whole call
// through ctx.
func (d *Dispatcher) Run(ctx context.Context, env Env, target string) Result {
	rule, ok := d.rules.Match(target)
	if !ok {
		d.logger.Debug("No behavior for %s", target)
		return Result{}
	}

	routine := routines[rule.Name]
	if env.Logger == nil {
		env.Logger = d.logger
	}
	if env.Timing == (Timing{}) {
		env.Timing = DefaultTiming()
	}

	d.logger.Info("Running %s behavior", rule.Name)
	res := Result{Handled: true, Rule: rule.Name, Video: rule.Video}
	res.AwaitIdle = routine(ctx, env)

	d.logger.Debug("Waiting for network idle (%s)", d.IdleWindow)
	if err := netidle.WaitSource(ctx, env.Browser, d.IdleWindow); err != nil {
		d.logger.Warn("Network did not go idle: %s", err)
	}
	return res
}
