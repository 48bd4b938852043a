package preflight

import (
	"context"
	"strings"

	"buildd/internal/config"
	"buildd/internal/memory"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The memory check is skipped when the low-memory expiration check is disabled,
// and the listener check when no metrics bind is configured.
func RunAll(ctx context.Context, cfg *config.Config, info memory.Info) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Cache directory", cfg.Cache.Dir),
		CheckJournal(ctx, cfg.JournalPath()),
	}

	if cfg.Expiration.Memory.Enabled {
		results = append(results, CheckMemory(ctx, cfg, info))
	}
	if bind := strings.TrimSpace(cfg.Metrics.Bind); bind != "" {
		results = append(results, CheckListen("Metrics listener", bind))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
