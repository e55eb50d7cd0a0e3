package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/depnotify/internal/identity"
)

const defaultTracerName = "github.com/roach88/depnotify/internal/update"

// UpdateDoneFunc is the post-delivery hook. It runs once per completed
// trigger, whether or not any dependent existed, and never for Destroyed.
type UpdateDoneFunc func(subject identity.Identity, msg Message)

// Engine is the notification façade.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - every method may be called from inside a Dependent's Update
//   - TriggerUpdates and TriggerDeferredUpdates run dependents inline on
//     the calling goroutine; the engine starts no goroutines of its own
//
// INVARIANTS:
//   - the engine lock is never held while a dependent, the update-done hook
//     or the recorder runs
//   - a dependent removed before or during a dispatch is not called by it
//   - each subject Identity is retained by the resolver while it has a
//     table entry, a queued change or an in-flight trigger
type Engine struct {
	mu       sync.Mutex
	resolver Resolver
	table    *dependencyTable
	stack    dispatchStack
	queue    deferredQueue
	clock    Sequencer

	shards        int
	maxDependents int
	updateDone    UpdateDoneFunc
	recorder      Recorder
	registerer    prometheus.Registerer
	metrics       *metrics
	tracer        trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResolver replaces the default identity registry.
func WithResolver(r Resolver) EngineOption {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithShards sets the number of dependency table shards.
//
// Default: 256 (DefaultShards)
func WithShards(n int) EngineOption {
	return func(e *Engine) {
		e.shards = n
	}
}

// WithMaxDependents caps how many dependents one dispatch notifies.
// Dependents past the cap are skipped for that call and a warning is logged.
//
// Default: 10240 (DefaultMaxDependents)
func WithMaxDependents(n int) EngineOption {
	return func(e *Engine) {
		e.maxDependents = n
	}
}

// WithUpdateDone installs the post-delivery hook.
func WithUpdateDone(fn UpdateDoneFunc) EngineOption {
	return func(e *Engine) {
		e.updateDone = fn
	}
}

// WithRecorder adds a recorder. May be given more than once.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		switch existing := e.recorder.(type) {
		case nil:
			e.recorder = r
		case multiRecorder:
			e.recorder = append(existing, r)
		default:
			e.recorder = multiRecorder{existing, r}
		}
	}
}

// WithMetrics registers the engine's collectors with reg.
// Without it metrics are still maintained but not exported.
func WithMetrics(reg prometheus.Registerer) EngineOption {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithTracer sets the tracer used for dispatch and drain spans.
// Default: the global OpenTelemetry provider's tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithClock sets the logical clock used for queue order and events.
func WithClock(c Sequencer) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		shards:        DefaultShards,
		maxDependents: DefaultMaxDependents,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.resolver == nil {
		e.resolver = identity.NewRegistry()
	}
	if e.clock == nil {
		e.clock = NewClock()
	}
	if e.maxDependents < 1 {
		e.maxDependents = DefaultMaxDependents
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(defaultTracerName)
	}
	e.metrics = newMetrics(e.registerer)
	e.table = newDependencyTable(e.shards)

	return e
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns the process-wide engine, creating it on first use.
// Library code and tests should prefer their own New() instance.
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = New()
	})
	return defaultEngine
}

// AddDependent registers dep on subject. The same dependent may be added
// more than once and is then notified once per registration.
func (e *Engine) AddDependent(subject any, dep Dependent) error {
	if err := checkDependent(dep); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.resolver.Acquire(subject)
	if err != nil {
		return invalidSubject(err)
	}
	if !e.table.add(id, dep) {
		// The existing entry already holds a reference.
		e.resolver.Release(id)
	}
	e.metrics.registrations.Set(float64(e.table.total()))

	return nil
}

// RemoveDependent unregisters dependents and returns how many
// registrations were removed.
//
//   - subject nil, dep nil: ErrInvalidArgument
//   - subject nil: dep is removed from every subject
//   - dep nil: every dependent of subject is removed
//   - both set: dep is removed from subject only
//
// In-flight dispatches stop seeing the removed dependents immediately.
// Queued changes are cancelled for any subject left without dependents.
// When both are set, subject's queue is flushed if no other dependent
// remains registered on it.
func (e *Engine) RemoveDependent(subject any, dep Dependent) (int, error) {
	if subject == nil && dep == nil {
		return 0, ErrInvalidArgument
	}
	if dep != nil {
		if err := checkDependent(dep); err != nil {
			return 0, err
		}
	}

	removed, evs, err := e.remove(subject, dep)
	e.emit(context.Background(), evs...)
	return removed, err
}

func (e *Engine) remove(subject any, dep Dependent) (int, []Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var evs []Event
	removed, err := e.removeLocked(subject, dep, &evs)
	e.metrics.registrations.Set(float64(e.table.total()))
	return removed, evs, err
}

func (e *Engine) removeLocked(subject any, dep Dependent, evs *[]Event) (int, error) {
	if subject == nil {
		e.stack.scrub(identity.Identity{}, dep)
		removed, dropped := e.table.removeEverywhere(dep)
		for _, id := range dropped {
			*evs = append(*evs, e.cancelLocked(id)...)
			e.resolver.Release(id)
		}
		return removed, nil
	}

	id, err := e.resolver.Lookup(subject)
	if errors.Is(err, identity.ErrUnknown) {
		return 0, nil
	}
	if err != nil {
		return 0, invalidSubject(err)
	}

	e.stack.scrub(id, dep)

	if dep == nil {
		removed := e.table.removeEntry(id)
		*evs = append(*evs, e.cancelLocked(id)...)
		if removed > 0 {
			e.resolver.Release(id)
		}
		return removed, nil
	}

	removed, sawOther, dropped := e.table.removeFrom(id, dep)
	// Flush unless another dependent is still registered: this covers both
	// "last dependent removed" and "nothing was registered".
	if !sawOther {
		*evs = append(*evs, e.cancelLocked(id)...)
	}
	if dropped {
		e.resolver.Release(id)
	}
	return removed, nil
}

// CountDependencies returns the number of registrations for subject, or
// across all subjects when subject is nil. Unknown or unresolvable
// subjects count zero.
func (e *Engine) CountDependencies(subject any) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if subject == nil {
		return e.table.total()
	}
	id, err := e.resolver.Lookup(subject)
	if err != nil {
		return 0
	}
	return e.table.count(id)
}

// TriggerUpdates notifies subject's dependents of msg, in registration
// order, on the calling goroutine. It reports whether any dependent
// existed. A dependent error aborts the dispatch and is returned as is.
func (e *Engine) TriggerUpdates(ctx context.Context, subject any, msg Message) (bool, error) {
	e.mu.Lock()
	id, err := e.resolver.Acquire(subject)
	e.mu.Unlock()
	if err != nil {
		return false, invalidSubject(err)
	}
	defer e.release(id)

	return e.dispatch(ctx, id, msg)
}

// DeferUpdates queues msg for subject. A subject without dependents is not
// queued; the update-done hook fires straight away instead. Queuing the
// same (subject, msg) pair twice delivers it once.
func (e *Engine) DeferUpdates(subject any, msg Message) error {
	ctx := context.Background()

	e.mu.Lock()
	id, err := e.resolver.Acquire(subject)
	if err != nil {
		e.mu.Unlock()
		return invalidSubject(err)
	}

	if e.table.count(id) == 0 {
		e.mu.Unlock()
		e.done(ctx, id, msg)
		e.release(id)
		return nil
	}

	var ev Event
	if e.queue.push(deferredChange{subject: id, message: msg, seq: e.clock.Next()}) {
		// The queued change keeps the reference taken by Acquire.
		ev = e.newEvent(EventDefer, id, msg)
	} else {
		ev = e.newEvent(EventCoalesce, id, msg)
		e.resolver.Release(id)
	}
	e.metrics.pending.Set(float64(e.queue.len()))
	e.mu.Unlock()

	e.emit(ctx, ev)
	return nil
}

// TriggerDeferredUpdates delivers queued changes.
//
// With a nil subject every change queued before the call is delivered in
// FIFO order; changes queued by dependents during the drain wait for the
// next one. With a subject, that subject's changes are delivered until none
// remain. A change whose subject is being dispatched right now is put back
// at the end of the queue once the drain finishes.
//
// A dependent error stops the drain and is returned; undelivered changes
// stay queued.
func (e *Engine) TriggerDeferredUpdates(ctx context.Context, subject any) error {
	ctx, span := e.tracer.Start(ctx, "update.drain")
	defer span.End()

	var err error
	if subject == nil {
		err = e.drainAll(ctx)
	} else {
		e.mu.Lock()
		id, lookupErr := e.resolver.Lookup(subject)
		e.mu.Unlock()

		switch {
		case errors.Is(lookupErr, identity.ErrUnknown):
			return nil
		case lookupErr != nil:
			return invalidSubject(lookupErr)
		}
		span.SetAttributes(attribute.String("depnotify.subject", id.String()))
		err = e.drainSubject(ctx, id)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// CancelUpdates discards every queued change for subject and returns how
// many were discarded.
func (e *Engine) CancelUpdates(subject any) int {
	e.mu.Lock()
	id, err := e.resolver.Lookup(subject)
	if err != nil {
		e.mu.Unlock()
		return 0
	}
	evs := e.cancelLocked(id)
	e.mu.Unlock()

	e.emit(context.Background(), evs...)
	return len(evs)
}

// PendingUpdates returns the number of queued changes.
func (e *Engine) PendingUpdates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.len()
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Subjects         int `json:"subjects"`
	Registrations    int `json:"registrations"`
	Pending          int `json:"pending"`
	ActiveDispatches int `json:"active_dispatches"`
}

// Stats returns current sizes.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Subjects:         e.table.subjects(),
		Registrations:    e.table.total(),
		Pending:          e.queue.len(),
		ActiveDispatches: e.stack.depth(),
	}
}

// SubjectName returns the resolver's label for id.
func (e *Engine) SubjectName(id identity.Identity) string {
	return e.resolver.Name(id)
}

// dispatch runs one synchronous fan-out for id. The caller holds a
// reference on id for the duration.
func (e *Engine) dispatch(ctx context.Context, id identity.Identity, msg Message) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "update.dispatch", trace.WithAttributes(
		attribute.String("depnotify.subject", id.String()),
		attribute.String("depnotify.message", msg.String()),
	))
	defer span.End()

	e.mu.Lock()
	deps := e.table.get(id)
	if len(deps) == 0 {
		e.mu.Unlock()
		e.metrics.triggers.WithLabelValues(resultEmpty).Inc()
		e.done(ctx, id, msg)
		return false, nil
	}

	n := len(deps)
	dropped := 0
	if n > e.maxDependents {
		dropped = n - e.maxDependents
		n = e.maxDependents
	}
	frame := &dispatchFrame{
		subject:    id,
		dependents: make([]Dependent, n),
	}
	copy(frame.dependents, deps[:n])
	e.stack.push(frame)
	e.mu.Unlock()

	span.SetAttributes(attribute.Int("depnotify.dependents", n))
	slog.Debug("dispatching update", "subject", e.resolver.Name(id), "message", msg, "dependents", n)

	if dropped > 0 {
		e.overflow(ctx, id, msg, n, dropped)
	}

	start := time.Now()
	err := e.notify(ctx, frame, msg)
	e.metrics.dispatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.triggers.WithLabelValues(resultFailed).Inc()
		return true, err
	}

	e.metrics.triggers.WithLabelValues(resultDelivered).Inc()
	e.done(ctx, id, msg)
	return true, nil
}

// notify walks the frame outside the lock. Each slot is read under the
// lock because RemoveDependent may clear it concurrently.
func (e *Engine) notify(ctx context.Context, frame *dispatchFrame, msg Message) error {
	defer func() {
		e.mu.Lock()
		e.stack.pop(frame)
		e.mu.Unlock()
	}()

	for i := range frame.dependents {
		e.mu.Lock()
		d := frame.dependents[i]
		e.mu.Unlock()
		if d == nil {
			continue
		}

		ev := e.newEvent(EventDeliver, frame.subject, msg)
		ev.Dependent = DependentName(d)
		e.emit(ctx, ev)
		e.metrics.deliveries.WithLabelValues(messageLabel(msg)).Inc()

		if err := d.Update(ctx, frame.subject, msg); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) overflow(ctx context.Context, id identity.Identity, msg Message, notified, dropped int) {
	slog.Warn("dispatch snapshot truncated",
		"subject", e.resolver.Name(id),
		"message", msg,
		"notified", notified,
		"dropped", dropped,
		"error", ErrOverflow,
	)
	e.metrics.overflows.Inc()

	ev := e.newEvent(EventOverflow, id, msg)
	ev.Dropped = dropped
	e.emit(ctx, ev)
}

func (e *Engine) drainAll(ctx context.Context) error {
	e.mu.Lock()
	limit := e.queue.lastSeq()
	e.mu.Unlock()

	var requeue []deferredChange
	var err error
	for {
		e.mu.Lock()
		c, ok := e.queue.popFront(limit)
		if !ok {
			e.mu.Unlock()
			break
		}
		if e.stack.active(c.subject) {
			requeue = append(requeue, c)
			e.mu.Unlock()
			continue
		}
		e.metrics.pending.Set(float64(e.queue.len()))
		e.mu.Unlock()

		if err = e.deliverDeferred(ctx, c); err != nil {
			break
		}
	}

	e.restore(ctx, requeue)
	return err
}

func (e *Engine) drainSubject(ctx context.Context, id identity.Identity) error {
	var requeue []deferredChange
	var err error
	for {
		e.mu.Lock()
		c, ok := e.queue.takeFirst(id)
		if !ok {
			e.mu.Unlock()
			break
		}
		if e.stack.active(id) {
			requeue = append(requeue, c)
			e.mu.Unlock()
			continue
		}
		e.metrics.pending.Set(float64(e.queue.len()))
		e.mu.Unlock()

		if err = e.deliverDeferred(ctx, c); err != nil {
			break
		}
	}

	e.restore(ctx, requeue)
	return err
}

// deliverDeferred dispatches a dequeued change and drops its reference.
func (e *Engine) deliverDeferred(ctx context.Context, c deferredChange) error {
	defer e.release(c.subject)
	_, err := e.dispatch(ctx, c.subject, c.message)
	return err
}

// restore appends changes that were skipped because their subject was
// mid-dispatch. A pair queued again in the meantime is not duplicated.
// Changes whose subject lost its last dependent during the drain are
// cancelled instead.
func (e *Engine) restore(ctx context.Context, requeue []deferredChange) {
	if len(requeue) == 0 {
		return
	}

	evs := make([]Event, 0, len(requeue))
	e.mu.Lock()
	for _, c := range requeue {
		if e.table.count(c.subject) == 0 {
			evs = append(evs, e.newEvent(EventCancel, c.subject, c.message))
			e.resolver.Release(c.subject)
			continue
		}
		c.seq = e.clock.Next()
		if e.queue.push(c) {
			evs = append(evs, e.newEvent(EventRequeue, c.subject, c.message))
			continue
		}
		e.resolver.Release(c.subject)
	}
	e.metrics.pending.Set(float64(e.queue.len()))
	e.mu.Unlock()

	e.emit(ctx, evs...)
}

// cancelLocked removes id's queued changes and drops their references.
func (e *Engine) cancelLocked(id identity.Identity) []Event {
	removed := e.queue.cancel(id)
	if len(removed) == 0 {
		return nil
	}

	evs := make([]Event, 0, len(removed))
	for _, c := range removed {
		evs = append(evs, e.newEvent(EventCancel, c.subject, c.message))
	}
	for _, c := range removed {
		e.resolver.Release(c.subject)
	}
	e.metrics.pending.Set(float64(e.queue.len()))
	return evs
}

// done fires the update-done hook, except for Destroyed.
func (e *Engine) done(ctx context.Context, id identity.Identity, msg Message) {
	if msg == Destroyed {
		return
	}
	e.emit(ctx, e.newEvent(EventDone, id, msg))
	if e.updateDone != nil {
		e.updateDone(id, msg)
	}
}

func (e *Engine) release(id identity.Identity) {
	e.mu.Lock()
	e.resolver.Release(id)
	e.mu.Unlock()
}

func (e *Engine) newEvent(kind EventKind, id identity.Identity, msg Message) Event {
	return Event{
		Seq:         e.clock.Next(),
		Kind:        kind,
		Subject:     id,
		SubjectName: e.resolver.Name(id),
		Message:     msg,
	}
}

func (e *Engine) emit(ctx context.Context, evs ...Event) {
	if e.recorder == nil {
		return
	}
	for _, ev := range evs {
		if err := e.recorder.Record(ctx, ev); err != nil {
			slog.Error("recorder failed", "kind", ev.Kind, "subject", ev.SubjectName, "error", err)
		}
	}
}

func invalidSubject(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidSubject, err)
}
