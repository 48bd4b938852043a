package expiry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"buildd/internal/expiry"
	"buildd/internal/faults"
)

type fakeController struct {
	mu        sync.Mutex
	decisions []expiry.Decision
}

func (c *fakeController) Expire(_ context.Context, d expiry.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, d)
}

func (c *fakeController) calls() []expiry.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]expiry.Decision(nil), c.decisions...)
}

type fakeObserver struct {
	mu       sync.Mutex
	verdicts map[string]int
	failures map[string]int
	states   []expiry.State
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{verdicts: map[string]int{}, failures: map[string]int{}}
}

func (o *fakeObserver) CheckEvaluated(check string, _ expiry.Status, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts[check]++
	if err != nil {
		o.failures[check]++
	}
}

func (o *fakeObserver) StateChanged(s expiry.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

// switchable returns whatever verdict is currently stored.
type switchable struct {
	name string
	mu   sync.Mutex
	v    expiry.Verdict
}

func (s *switchable) Name() string { return s.name }

func (s *switchable) Evaluate(context.Context) (expiry.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v, nil
}

func (s *switchable) set(v expiry.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
}

func fixed(name string, v expiry.Verdict) expiry.Check {
	return expiry.CheckFunc(name, func(context.Context) (expiry.Verdict, error) { return v, nil })
}

func TestEvaluateReduction(t *testing.T) {
	tests := []struct {
		name       string
		verdicts   []expiry.Verdict
		wantStatus expiry.Status
		wantReason string
		wantCheck  string
	}{
		{
			name:       "graceful keeps first reason",
			verdicts:   []expiry.Verdict{expiry.Pass(), expiry.Graceful("a"), expiry.Graceful("b")},
			wantStatus: expiry.GracefulExpire,
			wantReason: "a",
			wantCheck:  "c1",
		},
		{
			name:       "immediate wins over graceful",
			verdicts:   []expiry.Verdict{expiry.Pass(), expiry.Immediate("x"), expiry.Graceful("y")},
			wantStatus: expiry.ImmediateExpire,
			wantReason: "x",
			wantCheck:  "c1",
		},
		{
			name:       "later immediate outranks earlier graceful",
			verdicts:   []expiry.Verdict{expiry.Graceful("g"), expiry.Pass(), expiry.Immediate("i")},
			wantStatus: expiry.ImmediateExpire,
			wantReason: "i",
			wantCheck:  "c2",
		},
		{
			name:       "nothing triggered",
			verdicts:   []expiry.Verdict{expiry.Pass(), expiry.Pass()},
			wantStatus: expiry.NotTriggered,
		},
		{
			name:       "no checks",
			wantStatus: expiry.NotTriggered,
		},
	}
	names := []string{"c0", "c1", "c2"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := expiry.NewEngine(nil)
			for i, v := range tt.verdicts {
				engine.Register(fixed(names[i], v))
			}
			d := engine.Evaluate(context.Background())
			if d.Status != tt.wantStatus || d.Reason != tt.wantReason || d.Check != tt.wantCheck {
				t.Fatalf("got status=%v reason=%q check=%q, want %v %q %q",
					d.Status, d.Reason, d.Check, tt.wantStatus, tt.wantReason, tt.wantCheck)
			}
			triggered := 0
			for _, v := range tt.verdicts {
				if v.Triggered() {
					triggered++
				}
			}
			if len(d.Triggered) != triggered {
				t.Fatalf("expected %d retained triggers, got %d", triggered, len(d.Triggered))
			}
			if engine.State() != expiry.Running {
				t.Fatal("Evaluate must not change state")
			}
		})
	}
}

func TestGracefulTickDrainsAndNeverResumes(t *testing.T) {
	ctrl := &fakeController{}
	check := &switchable{name: "mem", v: expiry.Graceful("to reclaim system memory")}
	engine := expiry.NewEngine(ctrl)
	engine.Register(check)

	d := engine.Tick(context.Background())
	if d.Status != expiry.GracefulExpire || engine.State() != expiry.Draining {
		t.Fatalf("expected draining after graceful tick, got %v/%v", d.Status, engine.State())
	}

	check.set(expiry.Pass())
	for i := 0; i < 3; i++ {
		engine.Tick(context.Background())
	}
	if engine.State() != expiry.Draining {
		t.Fatalf("expected engine to stay draining, got %v", engine.State())
	}
	if got := engine.LastDecision(); got.Reason != "to reclaim system memory" {
		t.Fatalf("expected last decision to keep the expiring reason, got %q", got.Reason)
	}

	calls := ctrl.calls()
	if len(calls) != 1 || calls[0].Reason != "to reclaim system memory" {
		t.Fatalf("expected exactly one controller notification, got %+v", calls)
	}

	engine.MarkStopped()
	if engine.State() != expiry.Stopped {
		t.Fatalf("expected stopped after MarkStopped, got %v", engine.State())
	}
	select {
	case <-engine.Stopped():
	default:
		t.Fatal("expected Stopped channel to be closed")
	}
	engine.MarkStopped()
}

func TestImmediateTickSkipsDrain(t *testing.T) {
	ctrl := &fakeController{}
	engine := expiry.NewEngine(ctrl)
	engine.Register(fixed("fatal", expiry.Immediate("disk gone")))

	engine.Tick(context.Background())
	if engine.State() != expiry.Stopped {
		t.Fatalf("expected stopped, got %v", engine.State())
	}
	if calls := ctrl.calls(); len(calls) != 1 || calls[0].Status != expiry.ImmediateExpire {
		t.Fatalf("expected one immediate notification, got %+v", calls)
	}
}

func TestMarkStoppedIgnoredWhileRunning(t *testing.T) {
	engine := expiry.NewEngine(nil)
	engine.MarkStopped()
	if engine.State() != expiry.Running {
		t.Fatalf("expected running, got %v", engine.State())
	}
}

func TestChecksFailOpen(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	observer := newFakeObserver()
	ctrl := &fakeController{}
	engine := expiry.NewEngine(ctrl,
		expiry.WithCheckTimeout(20*time.Millisecond),
		expiry.WithObserver(observer))
	engine.Register(
		expiry.CheckFunc("errors", func(context.Context) (expiry.Verdict, error) {
			return expiry.Graceful("ignored"), errors.New("sensor read failed")
		}),
		expiry.CheckFunc("panics", func(context.Context) (expiry.Verdict, error) {
			panic("boom")
		}),
		expiry.CheckFunc("hangs", func(context.Context) (expiry.Verdict, error) {
			<-release
			return expiry.Immediate("too late"), nil
		}),
		expiry.CheckFunc("no-reason", func(context.Context) (expiry.Verdict, error) {
			return expiry.Verdict{Status: expiry.GracefulExpire}, nil
		}),
		fixed("healthy", expiry.Pass()),
	)

	start := time.Now()
	d := engine.Tick(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("tick blocked on hung check for %s", elapsed)
	}
	if d.Status != expiry.NotTriggered {
		t.Fatalf("expected failures to count as not triggered, got %v", d.Status)
	}
	if len(d.Failures) != 4 {
		t.Fatalf("expected 4 failures, got %+v", d.Failures)
	}
	for _, f := range d.Failures {
		if !errors.Is(f.Err, faults.ErrCheckFailed) {
			t.Fatalf("failure for %s is not a check failure: %v", f.Check, f.Err)
		}
	}
	if engine.State() != expiry.Running || len(ctrl.calls()) != 0 {
		t.Fatal("expected engine to keep running without notifying the controller")
	}
	if observer.failures["hangs"] != 1 || observer.verdicts["healthy"] != 1 {
		t.Fatalf("unexpected observer counts %+v %+v", observer.verdicts, observer.failures)
	}
}

func TestConsecutiveTriggersDebounceGraceful(t *testing.T) {
	ctrl := &fakeController{}
	check := &switchable{name: "mem", v: expiry.Graceful("low")}
	engine := expiry.NewEngine(ctrl, expiry.WithConsecutiveTriggers(2))
	engine.Register(check)

	engine.Tick(context.Background())
	if engine.State() != expiry.Running {
		t.Fatal("expected a single graceful tick to be debounced")
	}

	check.set(expiry.Pass())
	engine.Tick(context.Background())
	check.set(expiry.Graceful("low"))
	engine.Tick(context.Background())
	if engine.State() != expiry.Running {
		t.Fatal("expected an intervening clear tick to reset the streak")
	}

	engine.Tick(context.Background())
	if engine.State() != expiry.Draining {
		t.Fatalf("expected draining after two consecutive graceful ticks, got %v", engine.State())
	}
	if len(ctrl.calls()) != 1 {
		t.Fatalf("expected one notification, got %d", len(ctrl.calls()))
	}
}

func TestConsecutiveTriggersDoNotDelayImmediate(t *testing.T) {
	engine := expiry.NewEngine(nil, expiry.WithConsecutiveTriggers(5))
	engine.Register(fixed("fatal", expiry.Immediate("now")))
	engine.Tick(context.Background())
	if engine.State() != expiry.Stopped {
		t.Fatalf("expected immediate stop, got %v", engine.State())
	}
}

func TestRunReturnsWhenStopped(t *testing.T) {
	check := &switchable{name: "later"}
	engine := expiry.NewEngine(nil, expiry.WithInterval(5*time.Millisecond))
	engine.Register(check)

	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	check.set(expiry.Immediate("shutdown requested"))

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected nil error on stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the engine stopped")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	engine := expiry.NewEngine(nil, expiry.WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestObserverSeesStateChanges(t *testing.T) {
	observer := newFakeObserver()
	engine := expiry.NewEngine(nil, expiry.WithObserver(observer))
	engine.Register(fixed("mem", expiry.Graceful("low")))
	engine.Tick(context.Background())
	engine.MarkStopped()

	want := []expiry.State{expiry.Draining, expiry.Stopped}
	if len(observer.states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, observer.states)
	}
	for i := range want {
		if observer.states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, observer.states)
		}
	}
}

func TestStatusAndStateStrings(t *testing.T) {
	if expiry.GracefulExpire.String() != "graceful" || expiry.Draining.String() != "draining" {
		t.Fatal("unexpected string forms")
	}
}
