package store

import (
	"context"
	"fmt"

	"github.com/roach88/depnotify/internal/update"
)

// Run is one recorded session.
type Run struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Seq    int64  `json:"seq"`    // creation order
	Events int    `json:"events"` // filled by ListRuns and GetRun
}

// EventRecord is the stored form of an update.Event. Subjects are kept by
// name: identities are only meaningful inside the process that issued them.
type EventRecord struct {
	RunID     string           `json:"run_id"`
	Seq       int64            `json:"seq"`
	Kind      update.EventKind `json:"kind"`
	Subject   string           `json:"subject"`
	Dependent string           `json:"dependent,omitempty"`
	Message   update.Message   `json:"message"`
	Dropped   int              `json:"dropped,omitempty"`
}

// RecordFromEvent converts an engine event for storage under runID.
func RecordFromEvent(runID string, ev update.Event) EventRecord {
	return EventRecord{
		RunID:     runID,
		Seq:       ev.Seq,
		Kind:      ev.Kind,
		Subject:   ev.SubjectName,
		Dependent: ev.Dependent,
		Message:   ev.Message,
		Dropped:   ev.Dropped,
	}
}

// CreateRun inserts a run. Creating an existing ID is a no-op and returns
// the stored run.
func (s *Store) CreateRun(ctx context.Context, id, label string) (Run, error) {
	if id == "" {
		return Run{}, fmt.Errorf("create run: empty id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, seq)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs))
		ON CONFLICT(id) DO NOTHING
	`, id, label)
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}

	var run Run
	err = s.db.QueryRowContext(ctx,
		`SELECT id, label, seq FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Label, &run.Seq)
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// AppendEvent inserts one event. Uses ON CONFLICT DO NOTHING so writing the
// same (run, seq) twice is silently ignored.
//
// Note: The run referenced by rec.RunID must exist (foreign key constraint).
func (s *Store) AppendEvent(ctx context.Context, rec EventRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, subject, dependent, message, dropped)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		string(rec.Kind),
		rec.Subject,
		rec.Dependent,
		marshalMessage(rec.Message),
		rec.Dropped,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Journal records one run's events into a Store.
// It implements update.Recorder.
type Journal struct {
	store *Store
	run   Run
}

var _ update.Recorder = (*Journal)(nil)

// NewJournal creates (or reopens) run id and returns a recorder for it.
func NewJournal(ctx context.Context, s *Store, id, label string) (*Journal, error) {
	run, err := s.CreateRun(ctx, id, label)
	if err != nil {
		return nil, err
	}
	return &Journal{store: s, run: run}, nil
}

// Run returns the run being recorded.
func (j *Journal) Run() Run {
	return j.run
}

// Record appends ev to the run.
func (j *Journal) Record(ctx context.Context, ev update.Event) error {
	return j.store.AppendEvent(ctx, RecordFromEvent(j.run.ID, ev))
}
