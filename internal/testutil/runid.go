package testutil

import "github.com/google/uuid"

// RunIDGenerator produces identifiers for journal runs.
type RunIDGenerator interface {
	Generate() string
}

// UUIDRunIDs generates time-sortable UUIDv7 run IDs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDRunIDs struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDRunIDs) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedRunID returns the same run ID every time.
//
// Scenario runs use it so that the same scenario produces byte-identical
// traces and journal rows.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed generator.
// If id is empty, Generate() returns "run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run ID.
func (g *FixedRunID) Generate() string {
	return g.id
}
