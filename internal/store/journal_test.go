package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/depnotify/internal/identity"
	"github.com/roach88/depnotify/internal/update"
)

func TestCreateRun_AssignsIncreasingSeq(t *testing.T) {
	s := createTestStore(t)

	a := insertTestRun(t, s, "a")
	b := insertTestRun(t, s, "b")

	if a.Seq != 1 || b.Seq != 2 {
		t.Errorf("seqs = %d, %d; want 1, 2", a.Seq, b.Seq)
	}
}

func TestCreateRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, "r", "first")
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	again, err := s.CreateRun(ctx, "r", "second")
	if err != nil {
		t.Fatalf("second CreateRun() failed: %v", err)
	}

	if again != first {
		t.Errorf("second CreateRun() = %+v, want %+v", again, first)
	}
}

func TestCreateRun_EmptyID(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.CreateRun(context.Background(), "", "x"); err == nil {
		t.Error("expected error for empty run id")
	}
}

func TestAppendEvent_DuplicateIgnored(t *testing.T) {
	s := createTestStore(t)
	insertTestRun(t, s, "r")

	rec := testEvent("r", 1, update.EventDeliver)
	appendTestEvent(t, s, rec)

	rec.Subject = "other"
	appendTestEvent(t, s, rec)

	events, err := s.ReadEvents(context.Background(), "r")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(events) != 1 || events[0].Subject != "s" {
		t.Errorf("events = %+v, want the first write only", events)
	}
}

func TestAppendEvent_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.AppendEvent(context.Background(), testEvent("ghost", 1, update.EventDone))
	if err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}

func TestJournal_RecordsEngineEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	j, err := NewJournal(ctx, s, "run-1", "journal test")
	if err != nil {
		t.Fatalf("NewJournal() failed: %v", err)
	}

	eng := update.New(update.WithRecorder(j))
	dep := update.DependentFunc("d1", func(context.Context, identity.Identity, update.Message) error {
		return nil
	})
	if err := eng.AddDependent("s", dep); err != nil {
		t.Fatalf("AddDependent() failed: %v", err)
	}
	if _, err := eng.TriggerUpdates(ctx, "s", update.Changed); err != nil {
		t.Fatalf("TriggerUpdates() failed: %v", err)
	}

	events, err := s.ReadEvents(ctx, j.Run().ID)
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}

	want := []string{
		"seq=1 deliver subject=s message=changed dependent=d1",
		"seq=2 done subject=s message=changed",
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, ev := range events {
		if ev.String() != want[i] {
			t.Errorf("event %d = %q, want %q", i, ev.String(), want[i])
		}
	}
}

func TestJournal_ReopenSameRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	j1, err := NewJournal(ctx, s, "r", "one")
	if err != nil {
		t.Fatalf("NewJournal() failed: %v", err)
	}
	j2, err := NewJournal(ctx, s, "r", "two")
	if err != nil {
		t.Fatalf("second NewJournal() failed: %v", err)
	}
	if j1.Run() != j2.Run() {
		t.Errorf("reopened run = %+v, want %+v", j2.Run(), j1.Run())
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}
