package history_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"minutes/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestQueryEmptyStore(t *testing.T) {
	store := openStore(t)
	docs, err := store.Query(context.Background(), "budget review", 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}

func TestAddAndQueryRanksBySimilarity(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	meetings := []struct {
		id   string
		text string
	}{
		{"m1", "SUMMARY:\nSPEAKER_00: Marketing campaign launch is scheduled for spring."},
		{"m2", "SUMMARY:\nSPEAKER_00: Budget review for the hiring plan.\nACTION ITEMS:\n- Draft hiring budget (Assigned to: SPEAKER_01)"},
		{"m3", "SUMMARY:\nSPEAKER_01: Office party planning and catering."},
	}
	for _, m := range meetings {
		if err := store.Add(ctx, m.text, history.Metadata{MeetingID: m.id, Timestamp: "2026-01-01T10:00:00Z", Participants: []string{"SPEAKER_00", "SPEAKER_01"}}); err != nil {
			t.Fatalf("Add %s failed: %v", m.id, err)
		}
	}

	docs, err := store.Query(ctx, "SPEAKER_00: we need to revisit the hiring budget", 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Metadata.MeetingID != "m2" {
		t.Fatalf("expected hiring budget meeting first, got %+v", docs[0].Metadata)
	}
	if !reflect.DeepEqual(docs[0].Metadata.Participants, []string{"SPEAKER_00", "SPEAKER_01"}) {
		t.Fatalf("unexpected participants %v", docs[0].Metadata.Participants)
	}
	if docs[0].Score <= docs[1].Score {
		t.Fatalf("expected descending scores, got %v then %v", docs[0].Score, docs[1].Score)
	}
}

func TestQueryFillsWithRecentMeetings(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"old", "new"} {
		if err := store.Add(ctx, "Quarterly offsite logistics for "+id, history.Metadata{MeetingID: id}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	docs, err := store.Query(ctx, "unrelated words entirely", 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected all stored meetings returned, got %d", len(docs))
	}
	if docs[0].Metadata.MeetingID != "new" {
		t.Fatalf("expected newest meeting first on equal scores, got %s", docs[0].Metadata.MeetingID)
	}
}

func TestAddRejectsEmptyText(t *testing.T) {
	store := openStore(t)
	if err := store.Add(context.Background(), "   ", history.Metadata{MeetingID: "x"}); err == nil {
		t.Fatal("expected error for empty text")
	}
	count, err := store.Count(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected empty store, got count=%d err=%v", count, err)
	}
}

func TestReopenKeepsMeetings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if err := store.Add(context.Background(), "Roadmap sync", history.Metadata{MeetingID: "m1"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	_ = store.Close()

	reopened, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	recent, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Metadata.MeetingID != "m1" {
		t.Fatalf("unexpected recent meetings %+v", recent)
	}
}
