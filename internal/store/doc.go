// Package store provides the SQLite-backed journal of engine events.
//
// The journal is append-only:
//   - Runs: one row per recorded session, ordered by creation seq
//   - Events: one row per update.Event, keyed by (run_id, seq)
//
// # Ordering
//
// Every query orders by seq, the engine's logical clock, and never by
// wall time. Reading a run back therefore yields the exact order in which
// the engine acted, across processes and replays.
//
// # Idempotency
//
// UNIQUE(run_id, seq) with ON CONFLICT DO NOTHING makes re-recording the
// same event a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
