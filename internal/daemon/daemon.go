package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"buildd/internal/config"
	"buildd/internal/expiry"
	"buildd/internal/faults"
	"buildd/internal/journal"
	"buildd/internal/logging"
	"buildd/internal/metrics"
	"buildd/internal/taskcache"
)

var (
	// ErrNotAccepting is returned by BeginWork once the daemon is expiring.
	ErrNotAccepting = errors.New("daemon is not accepting new work")
	// ErrAlreadyRunning is returned when another daemon holds the state directory lock.
	ErrAlreadyRunning = errors.New("another buildd daemon instance is already running")
)

const journalWriteTimeout = 5 * time.Second

// Option configures a Daemon.
type Option func(*Daemon)

// WithSessionID tags journal entries and status with a run identifier.
func WithSessionID(id string) Option {
	return func(d *Daemon) { d.sessionID = id }
}

// WithMetrics wires the collector into the engine and in-flight gauge.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Daemon) { d.metrics = c }
}

// WithChecks registers expiration checks with the engine.
func WithChecks(checks ...expiry.Check) Option {
	return func(d *Daemon) { d.checks = append(d.checks, checks...) }
}

// WithLock hands the daemon a state directory lock the caller already holds.
func WithLock(l *flock.Flock) Option {
	return func(d *Daemon) {
		if l != nil {
			d.lock = l
			d.lockPath = l.Path()
		}
	}
}

// AcquireLock takes the exclusive state directory lock without blocking.
// It returns ErrAlreadyRunning when another daemon holds it.
func AcquireLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, "daemon", "lock", "acquire lock "+cfg.LockPath(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, cfg.LockPath())
	}
	return lock, nil
}

// Daemon ties the cache, journal, and expiration engine into one lifecycle.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *taskcache.Store
	journal   *journal.Journal
	engine    *expiry.Engine
	metrics   *metrics.Collector
	checks    []expiry.Check
	server    *httpServer
	sessionID string
	pid       int
	startedAt time.Time

	lockPath string
	lock     *flock.Flock
	// ownsLock is set when Start took the lock and Stop must release it.
	ownsLock bool

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	runDone chan struct{}

	mu        sync.Mutex
	accepting bool
	inflight  int
	idle      chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	State        expiry.State
	Accepting    bool
	InFlight     int
	SessionID    string
	PID          int
	StartedAt    time.Time
	Cache        string
	LockFilePath string
	JournalPath  string
	LastDecision expiry.Decision
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *taskcache.Store, j *journal.Journal, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || j == nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "daemon", "new", "daemon requires config, cache store, and journal", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:       cfg,
		store:     store,
		journal:   j,
		pid:       os.Getpid(),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
		accepting: true,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(logger, "daemon")

	engineOpts := []expiry.EngineOption{
		expiry.WithInterval(cfg.PollInterval()),
		expiry.WithCheckTimeout(cfg.CheckTimeout()),
		expiry.WithConsecutiveTriggers(cfg.Expiration.ConsecutiveTriggers),
		expiry.WithLogger(logger),
	}
	if d.metrics != nil {
		engineOpts = append(engineOpts, expiry.WithObserver(d.metrics))
	}
	d.engine = expiry.NewEngine(d, engineOpts...)
	d.engine.Register(d.checks...)

	server, err := newHTTPServer(cfg.Metrics.Bind, d, d.logger)
	if err != nil {
		return nil, err
	}
	d.server = server
	return d, nil
}

// Start acquires the state directory lock, unless already held, and launches
// the expiration engine. A lock passed in with WithLock stays held after Stop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if !d.lock.Locked() {
		ok, err := d.lock.TryLock()
		if err != nil {
			return faults.Wrap(faults.ErrIO, "daemon", "start", "acquire lock "+d.lockPath, err)
		}
		if !ok {
			return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
		}
		d.ownsLock = true
	}

	d.startedAt = time.Now()
	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.server.start(d.ctx); err != nil {
		d.releaseLock()
		d.cancel()
		return err
	}

	d.runDone = make(chan struct{})
	go func() {
		defer close(d.runDone)
		if err := d.engine.Run(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("expiration engine stopped", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("buildd daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("cache", d.store.Describe()),
		logging.Duration("poll_interval", d.engine.Interval()))
	return nil
}

// Stop halts the engine, stops the HTTP server, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.runDone != nil {
		<-d.runDone
	}
	d.server.stop()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("buildd daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) releaseLock() {
	if !d.ownsLock {
		return
	}
	d.ownsLock = false
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"))
	}
}

// Close stops the daemon. The cache and journal belong to the caller.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Done is closed once the daemon has expired and finished draining.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// Engine exposes the expiration engine.
func (d *Daemon) Engine() *expiry.Engine { return d.engine }

// Store exposes the task cache.
func (d *Daemon) Store() *taskcache.Store { return d.store }

// BeginWork admits one unit of work. The returned done func must be called
// when the work finishes; extra calls are ignored.
func (d *Daemon) BeginWork() (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.accepting {
		return nil, ErrNotAccepting
	}
	d.inflight++
	d.reportInFlight()
	var once sync.Once
	return func() { once.Do(d.finishWork) }, nil
}

func (d *Daemon) finishWork() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	d.reportInFlight()
	if d.inflight == 0 && d.idle != nil {
		close(d.idle)
		d.idle = nil
	}
}

func (d *Daemon) reportInFlight() {
	if d.metrics != nil {
		d.metrics.InFlightWork.Set(float64(d.inflight))
	}
}

// GetResult streams a cached task result to fn. The read counts as admitted
// work until fn returns, so a graceful expiry waits for it. ok is false on a
// cache miss, in which case fn is not called.
func (d *Daemon) GetResult(key taskcache.Key, fn func(io.Reader) error) (bool, error) {
	if fn == nil {
		return false, faults.Wrap(faults.ErrConfiguration, "daemon", "get result", "read callback is required", nil)
	}
	done, err := d.BeginWork()
	if err != nil {
		return false, err
	}
	defer done()

	reader, ok, err := d.store.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := reader.Read(fn); err != nil {
		return true, err
	}
	return true, nil
}

// PutResult stores a task result as admitted work.
func (d *Daemon) PutResult(key taskcache.Key, w taskcache.Writer) error {
	done, err := d.BeginWork()
	if err != nil {
		return err
	}
	defer done()
	return d.store.Put(key, w)
}

// Expire implements expiry.Controller.
func (d *Daemon) Expire(ctx context.Context, decision expiry.Decision) {
	d.mu.Lock()
	d.accepting = false
	inflight := d.inflight
	d.mu.Unlock()

	d.logger.Info("daemon expiration started",
		logging.String(logging.FieldEventType, "daemon_expiration_started"),
		logging.String("status", decision.Status.String()),
		logging.String("reason", decision.Reason),
		logging.String(logging.FieldCheck, decision.Check),
		logging.Int("inflight", inflight))

	d.recordStop(ctx, decision)

	if decision.Status == expiry.ImmediateExpire {
		d.finish()
		return
	}
	go d.drain(ctx)
}

func (d *Daemon) drain(ctx context.Context) {
	d.mu.Lock()
	var idle chan struct{}
	if d.inflight > 0 {
		if d.idle == nil {
			d.idle = make(chan struct{})
		}
		idle = d.idle
	}
	d.mu.Unlock()

	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			logging.WarnWithContext(d.logger, "drain interrupted", "daemon_drain_interrupted",
				logging.Error(ctx.Err()),
				logging.String(logging.FieldImpact, "in-flight work may be cut short"))
		}
	}
	d.engine.MarkStopped()
	d.finish()
}

func (d *Daemon) finish() {
	d.doneOnce.Do(func() {
		close(d.done)
		d.logger.Info("daemon ready to exit", logging.String(logging.FieldEventType, "daemon_ready_to_exit"))
	})
}

func (d *Daemon) recordStop(ctx context.Context, decision expiry.Decision) {
	event := journal.StopEvent{
		SessionID:    d.sessionID,
		PID:          d.pid,
		Status:       decision.Status.String(),
		Reason:       decision.Reason,
		Check:        decision.Check,
		FailedChecks: len(decision.Failures),
		StartedAt:    d.startedAt,
		RecordedAt:   decision.EvaluatedAt,
	}
	for _, t := range decision.Triggered {
		event.Triggers = append(event.Triggers, journal.Trigger{
			Check:  t.Check,
			Status: t.Verdict.Status.String(),
			Reason: t.Verdict.Reason,
		})
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
	defer cancel()
	if _, err := d.journal.Record(writeCtx, event); err != nil {
		logging.WarnWithContext(d.logger, "failed to journal stop event", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check "+d.journal.Path()),
			logging.String(logging.FieldImpact, "buildd history will not show this stop"))
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	accepting, inflight := d.accepting, d.inflight
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		State:        d.engine.State(),
		Accepting:    accepting,
		InFlight:     inflight,
		SessionID:    d.sessionID,
		PID:          d.pid,
		StartedAt:    d.startedAt,
		Cache:        d.store.Describe(),
		LockFilePath: d.lockPath,
		JournalPath:  d.journal.Path(),
		LastDecision: d.engine.LastDecision(),
	}
}
