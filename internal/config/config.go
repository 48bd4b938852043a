package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix prefixes every environment override (e.g. BUILDD_CACHE_DIR).
const EnvPrefix = "BUILDD"

// Paths contains daemon state and log locations.
type Paths struct {
	StateDir string `toml:"state_dir" split_words:"true"`
	LogDir   string `toml:"log_dir" split_words:"true"`
}

// Cache contains configuration for the task-result cache.
type Cache struct {
	Dir string `toml:"dir"`
}

// MemoryCheck configures the low-memory expiration check. When MinFreeBytes is
// positive it is used as the absolute threshold; otherwise MinFreeFraction of
// total physical memory is used. Either way the threshold is clamped to
// [MinThresholdBytes, MaxThresholdBytes].
type MemoryCheck struct {
	Enabled           bool    `toml:"enabled"`
	MinFreeFraction   float64 `toml:"min_free_fraction" split_words:"true"`
	MinFreeBytes      int64   `toml:"min_free_bytes" split_words:"true"`
	MinThresholdBytes int64   `toml:"min_threshold_bytes" split_words:"true"`
	MaxThresholdBytes int64   `toml:"max_threshold_bytes" split_words:"true"`
}

// Expiration contains configuration for the daemon expiration engine.
type Expiration struct {
	PollIntervalSeconds int         `toml:"poll_interval_seconds" split_words:"true"`
	CheckTimeoutSeconds int         `toml:"check_timeout_seconds" split_words:"true"`
	ConsecutiveTriggers int         `toml:"consecutive_triggers" split_words:"true"`
	Memory              MemoryCheck `toml:"memory"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days" split_words:"true"`
}

// Metrics contains configuration for the Prometheus endpoint. An empty Bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for buildd.
//
// Configuration sections by subsystem:
//   - Paths: daemon state (lock, journal, pid) and logs
//   - Cache: task-result cache directory
//   - Expiration: polling cadence, per-check timeout, debounce, memory check
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus listener
type Config struct {
	Paths      Paths      `toml:"paths"`
	Cache      Cache      `toml:"cache"`
	Expiration Expiration `toml:"expiration"`
	Logging    Logging    `toml:"logging"`
	Metrics    Metrics    `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. The second and third results report the resolved
// file path and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, "", false, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("buildd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. The task cache
// creates and validates its own directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the expiration polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Expiration.PollIntervalSeconds) * time.Second
}

// CheckTimeout returns the per-check evaluation timeout.
func (c *Config) CheckTimeout() time.Duration {
	return time.Duration(c.Expiration.CheckTimeoutSeconds) * time.Second
}

// LockPath returns the single-instance lock file inside the state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "buildd.lock")
}

// JournalPath returns the SQLite stop-event journal inside the state directory.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "daemon.db")
}

// PIDPath returns the pid file inside the state directory.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "buildd.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "buildd", "task-results")
	}
	return "~/.cache/buildd/task-results"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
