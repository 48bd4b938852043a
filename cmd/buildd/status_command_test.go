package main

import (
	"testing"
	"time"

	"buildd/internal/journal"
)

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	recordStop(t, env, journal.StopEvent{
		Status:     "immediate",
		Reason:     "shutdown requested",
		RecordedAt: time.Now().UTC(),
	})

	out, _, err := runCLI(t, env, nil, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running")
	requireContains(t, out, "[WARN] no")
	requireContains(t, out, "immediate")
	requireContains(t, out, "shutdown requested")
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, nil, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
