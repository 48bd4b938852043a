package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"

	"buildd/internal/faults"
	"buildd/internal/logging"
	"buildd/internal/memory"
)

const (
	// DefaultMinThreshold is the lower clamp for computed memory thresholds.
	DefaultMinThreshold uint64 = 384 << 20
	// DefaultMaxThreshold is the upper clamp for computed memory thresholds.
	DefaultMaxThreshold uint64 = 1 << 30

	// LowMemoryReason is the reason reported when free memory is too low.
	LowMemoryReason = "to reclaim system memory"

	lowMemoryCheckName = "low_memory"
)

// LowMemoryOption configures a LowMemoryCheck.
type LowMemoryOption func(*lowMemorySettings)

type lowMemorySettings struct {
	min    uint64
	max    uint64
	logger *slog.Logger
}

// WithThresholdBounds overrides the clamp applied to the threshold.
func WithThresholdBounds(lo, hi uint64) LowMemoryOption {
	return func(s *lowMemorySettings) {
		s.min = lo
		s.max = hi
	}
}

// WithCheckLogger sets the logger used when the check triggers.
func WithCheckLogger(logger *slog.Logger) LowMemoryOption {
	return func(s *lowMemorySettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// LowMemoryCheck requests a graceful expiration when free physical memory
// drops below a fixed threshold. The threshold is computed once at
// construction.
type LowMemoryCheck struct {
	info      memory.Info
	threshold uint64
	logger    *slog.Logger
}

// NewLowMemoryCheck builds a check with an absolute threshold in bytes,
// clamped to the configured bounds.
func NewLowMemoryCheck(info memory.Info, thresholdBytes uint64, opts ...LowMemoryOption) (*LowMemoryCheck, error) {
	settings, err := resolveLowMemorySettings(info, opts)
	if err != nil {
		return nil, err
	}
	return &LowMemoryCheck{
		info:      info,
		threshold: clamp(thresholdBytes, settings.min, settings.max),
		logger:    logging.NewComponentLogger(settings.logger, "expiry"),
	}, nil
}

// BelowFreeFraction builds a check whose threshold is fraction of total
// physical memory. fraction must be within [0, 1]. Total memory is read once;
// a failure to read it is a configuration error.
func BelowFreeFraction(ctx context.Context, info memory.Info, fraction float64, opts ...LowMemoryOption) (*LowMemoryCheck, error) {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return nil, faults.Wrap(faults.ErrConfiguration, "expiry", "low memory check",
			fmt.Sprintf("free memory fraction must be within [0, 1], got %v", fraction), nil)
	}
	if _, err := resolveLowMemorySettings(info, opts); err != nil {
		return nil, err
	}
	total, err := info.TotalPhysical(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "expiry", "low memory check", "read total physical memory", err)
	}
	return NewLowMemoryCheck(info, uint64(float64(total)*fraction), opts...)
}

func resolveLowMemorySettings(info memory.Info, opts []LowMemoryOption) (lowMemorySettings, error) {
	settings := lowMemorySettings{min: DefaultMinThreshold, max: DefaultMaxThreshold}
	for _, opt := range opts {
		opt(&settings)
	}
	if info == nil {
		return settings, faults.Wrap(faults.ErrConfiguration, "expiry", "low memory check", "memory info is required", nil)
	}
	if settings.min > settings.max {
		return settings, faults.Wrap(faults.ErrConfiguration, "expiry", "low memory check",
			fmt.Sprintf("threshold bounds inverted: min %d > max %d", settings.min, settings.max), nil)
	}
	return settings, nil
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Name implements Check.
func (c *LowMemoryCheck) Name() string { return lowMemoryCheckName }

// Threshold returns the clamped threshold in bytes.
func (c *LowMemoryCheck) Threshold() uint64 { return c.threshold }

// Evaluate implements Check.
func (c *LowMemoryCheck) Evaluate(ctx context.Context) (Verdict, error) {
	free, err := c.info.FreePhysical(ctx)
	if err != nil {
		return Pass(), faults.Wrap(faults.ErrCheckFailed, "expiry", lowMemoryCheckName, "read free physical memory", err)
	}
	if free >= c.threshold {
		return Pass(), nil
	}
	c.logger.Info("free system memory below threshold",
		logging.String(logging.FieldEventType, "low_memory_detected"),
		logging.String("free", humanize.IBytes(free)),
		logging.String("threshold", humanize.IBytes(c.threshold)),
		logging.Uint64("free_bytes", free),
		logging.Uint64("threshold_bytes", c.threshold))
	return Graceful(LowMemoryReason), nil
}
