package expiry_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"buildd/internal/expiry"
	"buildd/internal/faults"
	"buildd/internal/memory"
)

type brokenInfo struct{}

func (brokenInfo) TotalPhysical(context.Context) (uint64, error) { return 0, errors.New("no meminfo") }
func (brokenInfo) FreePhysical(context.Context) (uint64, error)  { return 0, errors.New("no meminfo") }

func TestBelowFreeFractionThresholdAndVerdicts(t *testing.T) {
	ctx := context.Background()
	info := &memory.Snapshot{Total: 1000, Free: 600}

	check, err := expiry.BelowFreeFraction(ctx, info, 0.5, expiry.WithThresholdBounds(0, 10000))
	if err != nil {
		t.Fatalf("BelowFreeFraction returned error: %v", err)
	}
	if check.Threshold() != 500 {
		t.Fatalf("expected threshold 500, got %d", check.Threshold())
	}

	verdict, err := check.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if verdict.Status != expiry.NotTriggered {
		t.Fatalf("expected not triggered with free=600, got %v", verdict.Status)
	}

	info.Free = 400
	verdict, err = check.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if verdict.Status != expiry.GracefulExpire || verdict.Reason != "to reclaim system memory" {
		t.Fatalf("expected graceful expiry with reclaim reason, got %+v", verdict)
	}
}

func TestFreeEqualToThresholdDoesNotTrigger(t *testing.T) {
	check, err := expiry.NewLowMemoryCheck(memory.Snapshot{Total: 1000, Free: 500}, 500, expiry.WithThresholdBounds(0, 10000))
	if err != nil {
		t.Fatal(err)
	}
	verdict, err := check.Evaluate(context.Background())
	if err != nil || verdict.Triggered() {
		t.Fatalf("expected not triggered at threshold, got %+v err=%v", verdict, err)
	}
}

func TestThresholdClampedToDefaultBounds(t *testing.T) {
	ctx := context.Background()
	const mib = 1 << 20

	small, err := expiry.BelowFreeFraction(ctx, memory.Snapshot{Total: 100 * mib}, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if small.Threshold() != 384*mib {
		t.Fatalf("expected clamp to 384 MiB, got %d", small.Threshold())
	}

	large, err := expiry.BelowFreeFraction(ctx, memory.Snapshot{Total: 64 << 30}, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if large.Threshold() != 1<<30 {
		t.Fatalf("expected clamp to 1 GiB, got %d", large.Threshold())
	}

	absolute, err := expiry.NewLowMemoryCheck(memory.Snapshot{}, 512*mib)
	if err != nil {
		t.Fatal(err)
	}
	if absolute.Threshold() != 512*mib {
		t.Fatalf("expected unclamped 512 MiB, got %d", absolute.Threshold())
	}
}

func TestBelowFreeFractionRejectsOutOfRange(t *testing.T) {
	for _, fraction := range []float64{-0.1, 1.1, math.NaN()} {
		_, err := expiry.BelowFreeFraction(context.Background(), memory.Snapshot{Total: 1000}, fraction)
		if !errors.Is(err, faults.ErrConfiguration) {
			t.Fatalf("fraction %v: expected configuration error, got %v", fraction, err)
		}
	}
	for _, fraction := range []float64{0, 1} {
		if _, err := expiry.BelowFreeFraction(context.Background(), memory.Snapshot{Total: 1000}, fraction); err != nil {
			t.Fatalf("fraction %v: unexpected error %v", fraction, err)
		}
	}
}

func TestBelowFreeFractionTotalUnavailable(t *testing.T) {
	_, err := expiry.BelowFreeFraction(context.Background(), brokenInfo{}, 0.1)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLowMemoryCheckRejectsBadConstruction(t *testing.T) {
	if _, err := expiry.NewLowMemoryCheck(nil, 1); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error for nil info, got %v", err)
	}
	if _, err := expiry.NewLowMemoryCheck(memory.Snapshot{}, 1, expiry.WithThresholdBounds(10, 5)); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error for inverted bounds, got %v", err)
	}
}

func TestLowMemoryEvaluateReadFailure(t *testing.T) {
	check, err := expiry.NewLowMemoryCheck(brokenInfo{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	verdict, err := check.Evaluate(context.Background())
	if !errors.Is(err, faults.ErrCheckFailed) {
		t.Fatalf("expected check failure, got %v", err)
	}
	if verdict.Triggered() {
		t.Fatal("expected not-triggered verdict alongside error")
	}
}
