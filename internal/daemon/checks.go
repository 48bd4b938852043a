package daemon

import (
	"context"
	"log/slog"

	"buildd/internal/config"
	"buildd/internal/expiry"
	"buildd/internal/memory"
	"buildd/internal/metrics"
)

// BuildChecks constructs the expiration checks enabled in cfg. Construction
// errors are configuration errors and should abort startup.
func BuildChecks(ctx context.Context, cfg *config.Config, info memory.Info, logger *slog.Logger, collector *metrics.Collector) ([]expiry.Check, error) {
	var checks []expiry.Check

	memCfg := cfg.Expiration.Memory
	if memCfg.Enabled {
		opts := []expiry.LowMemoryOption{
			expiry.WithThresholdBounds(uint64(memCfg.MinThresholdBytes), uint64(memCfg.MaxThresholdBytes)),
			expiry.WithCheckLogger(logger),
		}
		var (
			check *expiry.LowMemoryCheck
			err   error
		)
		if memCfg.MinFreeBytes > 0 {
			check, err = expiry.NewLowMemoryCheck(info, uint64(memCfg.MinFreeBytes), opts...)
		} else {
			check, err = expiry.BelowFreeFraction(ctx, info, memCfg.MinFreeFraction, opts...)
		}
		if err != nil {
			return nil, err
		}
		if collector != nil {
			collector.MemoryThreshold.Set(float64(check.Threshold()))
		}
		checks = append(checks, check)
	}

	return checks, nil
}
