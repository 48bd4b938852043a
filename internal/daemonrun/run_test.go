package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"buildd/internal/daemon"
	"buildd/internal/daemonrun"
	"buildd/internal/journal"
	"buildd/internal/memory"
	"buildd/internal/procenv"
	"buildd/internal/testsupport"
)

func TestRunExpiresOnLowMemory(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMemoryCheck(1000))
	cfg.Logging.Format = "json"
	cfg.Expiration.PollIntervalSeconds = 1
	t.Chdir(t.TempDir())

	errCh := make(chan error, 1)
	go func() {
		errCh <- daemonrun.Run(context.Background(), cfg, daemonrun.Options{
			Env:    procenv.NewUnsupported(),
			Memory: memory.Snapshot{Total: 4000, Free: 10},
		})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not expire")
	}

	j, err := journal.Open(context.Background(), cfg.JournalPath())
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	events, err := j.Recent(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Reason != "to reclaim system memory" {
		t.Fatalf("expected journaled low-memory stop, got %+v", events)
	}
	if events[0].SessionID == "" {
		t.Fatal("expected session id on stop event")
	}

	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err=%v", err)
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "buildd.log")); err != nil {
		t.Fatalf("expected current log pointer: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"
	t.Chdir(t.TempDir())
	t.Setenv(daemonrun.SessionEnvVar, "")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- daemonrun.Run(ctx, cfg, daemonrun.Options{Memory: memory.Snapshot{Total: 1, Free: 1}})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		pid, err := daemonrun.ReadPID(cfg)
		if err == nil && pid == os.Getpid() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected pid file with %d, got %d err=%v", os.Getpid(), pid, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := os.Getenv(daemonrun.SessionEnvVar); got == "" {
		t.Fatal("expected session id exported to the environment")
	}
}

func TestRunLeavesRunningDaemonUntouched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	workDir := t.TempDir()
	t.Chdir(workDir)

	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = held.Unlock() }()
	if err := os.WriteFile(cfg.PIDPath(), []byte("424242\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{Memory: memory.Snapshot{Total: 1, Free: 1}})
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	pid, err := daemonrun.ReadPID(cfg)
	if err != nil || pid != 424242 {
		t.Fatalf("expected pid file to keep 424242, got %d err=%v", pid, err)
	}
	logs, err := filepath.Glob(filepath.Join(cfg.Paths.LogDir, "buildd*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no log files from the refused run, got %v", logs)
	}
	if wd, _ := os.Getwd(); wd != workDir {
		t.Fatalf("working directory changed to %s", wd)
	}
}
