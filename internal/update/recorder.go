package update

import (
	"context"
	"sync"

	"github.com/roach88/depnotify/internal/identity"
)

// EventKind names what the engine did.
type EventKind string

const (
	// EventDeliver: a dependent is about to be called.
	EventDeliver EventKind = "deliver"
	// EventDone: the update-done hook fired.
	EventDone EventKind = "done"
	// EventDefer: a change was queued.
	EventDefer EventKind = "defer"
	// EventCoalesce: a change was dropped because the same pair was queued.
	EventCoalesce EventKind = "coalesce"
	// EventCancel: a queued change was discarded undelivered.
	EventCancel EventKind = "cancel"
	// EventRequeue: a queued change was put back because its subject was
	// mid-dispatch.
	EventRequeue EventKind = "requeue"
	// EventOverflow: a dispatch snapshot was truncated.
	EventOverflow EventKind = "overflow"
)

// Event is one recorded engine action.
type Event struct {
	Seq         int64
	Kind        EventKind
	Subject     identity.Identity
	SubjectName string
	Dependent   string // deliver only
	Message     Message
	Dropped     int // overflow only
}

// Recorder receives engine events. It is called outside the engine lock,
// on the goroutine that caused the event. Errors are logged, never
// propagated to engine callers.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// MemoryRecorder keeps events in memory. Safe for concurrent use.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends ev.
func (r *MemoryRecorder) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset discards recorded events.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// multiRecorder fans out to several recorders and returns the first error.
type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, ev Event) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
