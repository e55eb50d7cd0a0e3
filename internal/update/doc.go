// Package update implements the dependency / update notification engine.
//
// Subjects announce state changes; dependents registered on a subject are
// told about them. Delivery is either immediate (TriggerUpdates, a
// synchronous fan-out on the caller's goroutine) or deferred (DeferUpdates
// queues the change, TriggerDeferredUpdates delivers the batch later).
//
// ARCHITECTURE:
//
//   - Dependency Table: sharded map from subject Identity to the ordered
//     list of dependents. Duplicates are kept as added.
//   - Active Dispatch Stack: one frame per in-flight synchronous dispatch,
//     holding a snapshot of the dependents being notified.
//   - Deferred Change Queue: FIFO of (subject, message) pairs, at most one
//     entry per distinct pair.
//   - Engine: the façade. One mutex guards the three structures above.
//
// LOCK DISCIPLINE:
//
// The engine lock is held only while the table, stack or queue is read or
// mutated. It is never held while a dependent, the update-done hook or the
// recorder runs. A dependent's Update may therefore call back into any
// engine operation (add, remove, defer, trigger) without deadlocking.
//
// Removal during dispatch does not shrink the live snapshot. It sets the
// removed dependent's slots to nil and the dispatch loop skips them, so a
// dependent that has been removed is never called afterwards, even by a
// dispatch that was already running.
//
// FAILURE:
//
// A dependent that returns an error aborts the dispatch. The error reaches
// the TriggerUpdates caller unwrapped, the remaining dependents are not
// notified and the update-done hook does not fire for that call.
//
// OWNERSHIP:
//
// The engine does not own dependents. Callers must remove a dependent
// before it becomes invalid. Subject identities are reference counted
// through the Resolver so a subject's Identity stays valid exactly as long
// as the engine holds it.
package update
