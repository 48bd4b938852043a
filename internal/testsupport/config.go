package testsupport

import (
	"path/filepath"
	"testing"

	"buildd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The memory check is disabled so tests never depend on host memory; enable
// it with WithMemoryCheck.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Cache.Dir = filepath.Join(base, "cache")
	cfgVal.Expiration.Memory.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMemoryCheck enables the low-memory check with an absolute threshold
// and bounds wide enough that the threshold is used as given.
func WithMemoryCheck(minFreeBytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Expiration.Memory.Enabled = true
		b.cfg.Expiration.Memory.MinFreeBytes = minFreeBytes
		b.cfg.Expiration.Memory.MinThresholdBytes = 0
		b.cfg.Expiration.Memory.MaxThresholdBytes = 1 << 62
	}
}

// WithConsecutiveTriggers sets the expiration debounce.
func WithConsecutiveTriggers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Expiration.ConsecutiveTriggers = n
	}
}

// WithMetricsBind sets the status and metrics listener address.
func WithMetricsBind(bind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Bind = bind
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
