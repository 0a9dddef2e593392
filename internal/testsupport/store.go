package testsupport

import (
	"testing"

	"minutes/internal/config"
	"minutes/internal/history"
	"minutes/internal/resultstore"
)

// MustOpenHistory opens the history store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenResults opens the result store under the config's data dir.
func MustOpenResults(t testing.TB, cfg *config.Config) *resultstore.Store {
	t.Helper()

	store, err := resultstore.Open(cfg.ResultsDir())
	if err != nil {
		t.Fatalf("resultstore.Open: %v", err)
	}
	return store
}
