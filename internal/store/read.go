package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// ListRuns returns every run in creation order with its event count.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.label, r.seq, COUNT(e.seq)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.id
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Label, &run.Seq, &run.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.label, r.seq, COUNT(e.seq)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id
	`, id).Scan(&run.ID, &run.Label, &run.Seq, &run.Events)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ReadEvents returns the events of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, subject, dependent, message, dropped
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (EventRecord, error) {
	var rec EventRecord
	var kind, message string
	err := rows.Scan(&rec.RunID, &rec.Seq, &kind, &rec.Subject, &rec.Dependent, &message, &rec.Dropped)
	if err != nil {
		return EventRecord{}, fmt.Errorf("scan event: %w", err)
	}

	msg, err := unmarshalMessage(message)
	if err != nil {
		return EventRecord{}, fmt.Errorf("scan event %d: %w", rec.Seq, err)
	}
	rec.Kind = eventKind(kind)
	rec.Message = msg
	return rec, nil
}

// RunSummary aggregates a run's events.
type RunSummary struct {
	Run        Run            `json:"run"`
	LastSeq    int64          `json:"last_seq"`
	ByKind     map[string]int `json:"by_kind"`
	Dependents int            `json:"dependents"` // distinct dependents that received a delivery
}

// Summarize reads a run's events and counts them by kind.
func (s *Store) Summarize(ctx context.Context, runID string) (RunSummary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("summarize: %w", err)
	}

	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("summarize: %w", err)
	}

	summary := RunSummary{Run: run, ByKind: make(map[string]int)}
	seen := make(map[string]bool)
	for _, ev := range events {
		summary.ByKind[string(ev.Kind)]++
		if ev.Seq > summary.LastSeq {
			summary.LastSeq = ev.Seq
		}
		if ev.Dependent != "" && !seen[ev.Dependent] {
			seen[ev.Dependent] = true
			summary.Dependents++
		}
	}
	return summary, nil
}
