package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"buildd/internal/faults"
	"buildd/internal/logging"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultCheckTimeout = 5 * time.Second
)

// State is the engine lifecycle state.
type State int

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Controller owns drain and exit sequencing. Expire is called exactly once,
// when the engine leaves Running. A graceful controller calls MarkStopped
// once in-flight work has finished.
type Controller interface {
	Expire(ctx context.Context, decision Decision)
}

// Observer receives per-check outcomes and state changes.
type Observer interface {
	CheckEvaluated(check string, status Status, err error)
	StateChanged(state State)
}

// Trigger records a check that asked for expiration.
type Trigger struct {
	Check   string
	Verdict Verdict
}

// Failure records a check that errored, panicked, or timed out.
type Failure struct {
	Check string
	Err   error
}

// Decision is the reduced result of one tick. Reason and Check name the
// first trigger, in registration order, whose status equals Status.
type Decision struct {
	Status      Status
	Reason      string
	Check       string
	Triggered   []Trigger
	Failures    []Failure
	EvaluatedAt time.Time
}

// Expired reports whether the decision asks the daemon to stop.
func (d Decision) Expired() bool { return d.Status != NotTriggered }

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithInterval sets the Run polling interval.
func WithInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithCheckTimeout bounds each check evaluation.
func WithCheckTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.checkTimeout = d
		}
	}
}

// WithConsecutiveTriggers requires n consecutive graceful decisions before
// the engine starts draining. Immediate decisions act at once.
func WithConsecutiveTriggers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.consecutive = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(observer Observer) EngineOption {
	return func(e *Engine) {
		e.observer = observer
	}
}

// Engine evaluates registered checks and drives the expiration state machine.
type Engine struct {
	ctrl         Controller
	interval     time.Duration
	checkTimeout time.Duration
	consecutive  int
	logger       *slog.Logger
	observer     Observer
	now          func() time.Time

	tickMu sync.Mutex

	mu      sync.Mutex
	checks  []Check
	state   State
	streak  int
	last    Decision
	stopped chan struct{}
}

// NewEngine creates an engine in the Running state.
func NewEngine(ctrl Controller, opts ...EngineOption) *Engine {
	e := &Engine{
		ctrl:         ctrl,
		interval:     DefaultInterval,
		checkTimeout: DefaultCheckTimeout,
		consecutive:  1,
		logger:       logging.NewNop(),
		now:          time.Now,
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "expiry")
	return e
}

// Register appends checks. Registration order decides which reason is
// surfaced when several checks trigger at the same severity.
func (e *Engine) Register(checks ...Check) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range checks {
		if c != nil {
			e.checks = append(e.checks, c)
		}
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastDecision returns the most recent tick decision.
func (e *Engine) LastDecision() Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Stopped is closed when the engine reaches Stopped.
func (e *Engine) Stopped() <-chan struct{} { return e.stopped }

// Interval returns the Run polling interval.
func (e *Engine) Interval() time.Duration { return e.interval }

type outcome struct {
	verdict Verdict
	err     error
}

// Evaluate runs every registered check concurrently and reduces the results.
// It does not change engine state.
func (e *Engine) Evaluate(ctx context.Context) Decision {
	e.mu.Lock()
	checks := append([]Check(nil), e.checks...)
	e.mu.Unlock()

	outcomes := make([]outcome, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			outcomes[i] = e.runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	decision := Decision{EvaluatedAt: e.now()}
	for i, c := range checks {
		name := c.Name()
		o := outcomes[i]
		if o.err == nil && o.verdict.Triggered() && o.verdict.Reason == "" {
			o.err = faults.Wrap(faults.ErrCheckFailed, "expiry", name, "triggered verdict without reason", nil)
		}
		if e.observer != nil {
			e.observer.CheckEvaluated(name, o.verdict.Status, o.err)
		}
		if o.err != nil {
			decision.Failures = append(decision.Failures, Failure{Check: name, Err: o.err})
			logging.WarnWithContext(e.logger, "expiration check failed", "expiry_check_failed",
				logging.String(logging.FieldCheck, name),
				logging.Error(o.err),
				logging.String(logging.FieldErrorHint, "check is treated as not triggered"),
				logging.String(logging.FieldImpact, "daemon keeps running without this signal"))
			continue
		}
		if !o.verdict.Triggered() {
			continue
		}
		decision.Triggered = append(decision.Triggered, Trigger{Check: name, Verdict: o.verdict})
		if o.verdict.Status > decision.Status {
			decision.Status = o.verdict.Status
		}
	}
	for _, t := range decision.Triggered {
		if t.Verdict.Status == decision.Status {
			decision.Reason = t.Verdict.Reason
			decision.Check = t.Check
			break
		}
	}
	return decision
}

func (e *Engine) runCheck(ctx context.Context, c Check) outcome {
	cctx, cancel := context.WithTimeout(ctx, e.checkTimeout)
	defer cancel()

	// Buffered so an abandoned check can still complete its send and exit.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: faults.Wrap(faults.ErrCheckFailed, "expiry", c.Name(), fmt.Sprintf("panic: %v", r), nil)}
			}
		}()
		v, err := c.Evaluate(cctx)
		done <- outcome{verdict: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && !errors.Is(o.err, faults.ErrCheckFailed) {
			o.err = faults.Wrap(faults.ErrCheckFailed, "expiry", c.Name(), "evaluate", o.err)
		}
		if o.err != nil {
			o.verdict = Pass()
		}
		return o
	case <-cctx.Done():
		return outcome{err: faults.Wrap(faults.ErrCheckFailed, "expiry", c.Name(),
			fmt.Sprintf("no verdict within %s", e.checkTimeout), cctx.Err())}
	}
}

// Tick evaluates the checks and applies the decision. Once the engine has
// left Running, Tick evaluates nothing and returns the decision that caused
// the transition.
func (e *Engine) Tick(ctx context.Context) Decision {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if e.State() != Running {
		return e.LastDecision()
	}

	decision := e.Evaluate(ctx)

	e.mu.Lock()
	var next State
	switch decision.Status {
	case ImmediateExpire:
		next = Stopped
	case GracefulExpire:
		e.streak++
		if e.streak >= e.consecutive {
			next = Draining
		}
	default:
		e.streak = 0
	}
	e.last = decision
	if next == Running {
		streak := e.streak
		e.mu.Unlock()
		if decision.Status == GracefulExpire {
			e.logger.Info("expiration pending confirmation",
				logging.String(logging.FieldEventType, "expiry_pending"),
				logging.String("reason", decision.Reason),
				logging.Int("consecutive", streak),
				logging.Int("required", e.consecutive))
		}
		return decision
	}
	e.setStateLocked(next)
	e.mu.Unlock()

	e.logger.Info("daemon expiring",
		logging.String(logging.FieldEventType, "daemon_expiring"),
		logging.String("status", decision.Status.String()),
		logging.String("reason", decision.Reason),
		logging.String(logging.FieldCheck, decision.Check),
		logging.Int("triggered_checks", len(decision.Triggered)),
		logging.String("state", next.String()))

	if e.ctrl != nil {
		e.ctrl.Expire(ctx, decision)
	}
	return decision
}

// MarkStopped moves a draining engine to Stopped. It is a no-op in any other
// state.
func (e *Engine) MarkStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Draining {
		return
	}
	e.setStateLocked(Stopped)
	e.logger.Info("daemon drained", logging.String(logging.FieldEventType, "daemon_drained"))
}

func (e *Engine) setStateLocked(s State) {
	e.state = s
	if s == Stopped {
		close(e.stopped)
	}
	if e.observer != nil {
		e.observer.StateChanged(s)
	}
}

// Run ticks immediately and then on every interval until ctx is done or the
// engine reaches Stopped. It returns nil on Stopped and ctx.Err() otherwise.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-e.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}
