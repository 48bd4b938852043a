package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"buildd/internal/config"
	"buildd/internal/daemon"
	"buildd/internal/journal"
	"buildd/internal/logging"
	"buildd/internal/memory"
	"buildd/internal/metrics"
	"buildd/internal/procenv"
	"buildd/internal/taskcache"
)

// SessionEnvVar is exported to the daemon environment so child build
// processes can correlate their logs with the daemon run.
const SessionEnvVar = "BUILDD_SESSION_ID"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Detach starts a new session before serving.
	Detach bool
	// Env overrides the process environment capability; nil uses procenv.Current.
	Env procenv.Environment
	// Memory overrides the host memory source; nil uses memory.NewHost.
	Memory memory.Info
}

// Run starts the buildd daemon and blocks until it expires or receives
// SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// Nothing below may touch shared state until this instance owns the lock.
	// It is released last, after the pid file is gone.
	lock, err := daemon.AcquireLock(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.NewString()
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("buildd-%s.log", runID))

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		SessionID:   sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update buildd.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "buildd-*.log", Exclude: []string{logPath}},
	)

	env := opts.Env
	if env == nil {
		env = procenv.Current()
	}
	prepareProcess(logger, env, cfg, sessionID, opts.Detach)

	pid, _ := env.MaybePID()
	if err := writePIDFile(cfg.PIDPath(), pid); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	info := opts.Memory
	if info == nil {
		info = memory.NewHost()
	}
	logMemorySnapshot(signalCtx, logger, info)

	collector := metrics.New()
	store, err := taskcache.New(cfg.Cache.Dir, taskcache.WithLogger(logger), taskcache.WithObserver(collector))
	if err != nil {
		logger.Error("open task cache", logging.Error(err))
		return err
	}

	j, err := journal.Open(signalCtx, cfg.JournalPath())
	if err != nil {
		logger.Error("open journal", logging.Error(err))
		return err
	}
	defer j.Close()

	checks, err := daemon.BuildChecks(signalCtx, cfg, info, logger, collector)
	if err != nil {
		logger.Error("configure expiration checks", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, j, logger,
		daemon.WithSessionID(sessionID),
		daemon.WithLock(lock),
		daemon.WithMetrics(collector),
		daemon.WithChecks(checks...))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running buildd and state directory permissions"),
			logging.String(logging.FieldImpact, "daemon is not running"))
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("buildd daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown_signal"))
	case <-d.Done():
		decision := d.Engine().LastDecision()
		logger.Info("buildd daemon expired",
			logging.String(logging.FieldEventType, "daemon_expired"),
			logging.String("reason", decision.Reason))
	}
	return nil
}

func prepareProcess(logger *slog.Logger, env procenv.Environment, cfg *config.Config, sessionID string, detach bool) {
	if detach {
		if err := env.Detach(); err != nil {
			impact := "daemon stays attached to the launching terminal"
			if errors.Is(err, procenv.ErrUnsupportedOS) {
				impact = "detach is not available on this platform"
			}
			logging.WarnWithContext(logger, "detach failed", "daemon_detach_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run buildd under a service manager instead"),
				logging.String(logging.FieldImpact, impact))
		}
	}
	if !env.MaybeSetEnvironmentVariable(SessionEnvVar, sessionID) {
		logger.Debug("session id not exported to environment")
	}
	if !env.MaybeSetProcessDir(cfg.Paths.StateDir) {
		logger.Debug("working directory unchanged", logging.String("state_dir", cfg.Paths.StateDir))
	}
}

func logMemorySnapshot(ctx context.Context, logger *slog.Logger, info memory.Info) {
	reading, err := memory.Read(ctx, info)
	if err != nil {
		logging.WarnWithContext(logger, "memory snapshot unavailable", "memory_snapshot_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "low-memory expiration may not work"))
		return
	}
	logger.Info("memory snapshot",
		logging.String(logging.FieldEventType, "memory_snapshot"),
		logging.String("total", humanize.IBytes(reading.Total)),
		logging.String("free", humanize.IBytes(reading.Free)),
		logging.Float64("free_ratio", reading.FreeRatio()))
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "buildd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string, pid int) error {
	if path == "" || pid <= 0 {
		return nil
	}
	value := strconv.Itoa(pid) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon, or 0 when no pid file
// exists.
func ReadPID(cfg *config.Config) (int, error) {
	raw, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", cfg.PIDPath(), err)
	}
	return pid, nil
}
