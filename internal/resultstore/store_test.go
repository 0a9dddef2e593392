package resultstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"minutes/internal/report"
	"minutes/internal/resultstore"
	"minutes/internal/services"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := resultstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	rep := &report.MeetingReport{MeetingID: "task_20260101_000000_abcd1234", Duration: 12.5, Language: "en"}
	if err := store.Save(ctx, rep.MeetingID, rep); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(ctx, rep.MeetingID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.MeetingID != rep.MeetingID || loaded.Duration != 12.5 {
		t.Fatalf("unexpected loaded report %+v", loaded)
	}
	leftovers, _ := filepath.Glob(filepath.Join(store.Dir(), "*.tmp"))
	hidden, _ := filepath.Glob(filepath.Join(store.Dir(), ".*.tmp"))
	if len(leftovers)+len(hidden) != 0 {
		t.Fatalf("temp files left behind: %v %v", leftovers, hidden)
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	store, err := resultstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.Load(context.Background(), "task_missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsPathLikeIDs(t *testing.T) {
	store, err := resultstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, id := range []string{"../escape", "a/b", "", ".hidden"} {
		if err := store.Save(context.Background(), id, &report.MeetingReport{}); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", id, err)
		}
	}
}

func TestPruneOlderThan(t *testing.T) {
	store, err := resultstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"old", "fresh"} {
		if err := store.Save(ctx, id, &report.MeetingReport{MeetingID: id}); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(store.Dir(), "old.json"), past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	removed, err := store.PruneOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := store.Load(ctx, "old"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected old result pruned, got %v", err)
	}
	if _, err := store.Load(ctx, "fresh"); err != nil {
		t.Fatalf("expected fresh result kept, got %v", err)
	}
}
