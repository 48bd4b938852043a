package testsupport

import (
	"context"
	"testing"

	"buildd/internal/config"
	"buildd/internal/journal"
	"buildd/internal/taskcache"
)

// MustOpenCache opens the task cache configured in cfg.
func MustOpenCache(t testing.TB, cfg *config.Config, opts ...taskcache.Option) *taskcache.Store {
	t.Helper()

	store, err := taskcache.New(cfg.Cache.Dir, opts...)
	if err != nil {
		t.Fatalf("taskcache.New: %v", err)
	}
	return store
}

// MustOpenJournal opens the stop-event journal and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Journal {
	t.Helper()

	j, err := journal.Open(context.Background(), cfg.JournalPath())
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = j.Close()
	})
	return j
}
