package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/depnotify/internal/update"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestRun creates a run with an empty label.
func insertTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run, err := s.CreateRun(context.Background(), id, "")
	if err != nil {
		t.Fatalf("CreateRun(%q) failed: %v", id, err)
	}
	return run
}

// testEvent creates an event record with minimal required fields.
func testEvent(runID string, seq int64, kind update.EventKind) EventRecord {
	return EventRecord{
		RunID:   runID,
		Seq:     seq,
		Kind:    kind,
		Subject: "s",
		Message: update.Changed,
	}
}

func appendTestEvent(t *testing.T, s *Store, rec EventRecord) {
	t.Helper()
	if err := s.AppendEvent(context.Background(), rec); err != nil {
		t.Fatalf("AppendEvent(seq=%d) failed: %v", rec.Seq, err)
	}
}
