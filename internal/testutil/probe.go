package testutil

import (
	"context"
	"sync"

	"github.com/roach88/depnotify/internal/identity"
	"github.com/roach88/depnotify/internal/update"
)

// Call is one observed Update.
type Call struct {
	Dependent string
	Subject   identity.Identity
	Message   update.Message
}

// CallLog collects Update calls from many probes in the order they happen.
//
// Thread-safety: all methods are safe for concurrent use.
type CallLog struct {
	mu    sync.Mutex
	calls []Call
}

// NewCallLog creates an empty log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) add(c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

// Calls returns a copy of all calls.
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Names returns the dependent name of every call, in order.
func (l *CallLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	for i, c := range l.calls {
		out[i] = c.Dependent
	}
	return out
}

// Count returns how many calls the named dependent received.
func (l *CallLog) Count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.Dependent == name {
			n++
		}
	}
	return n
}

// Reset discards all calls.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// Probe is a Dependent that records every Update into a CallLog and then
// runs OnUpdate, if set. OnUpdate must be set before the probe is
// registered.
type Probe struct {
	name     string
	log      *CallLog
	OnUpdate update.UpdateFunc
}

// NewProbe creates a probe writing to log.
func NewProbe(name string, log *CallLog) *Probe {
	return &Probe{name: name, log: log}
}

// Name implements the naming convention used by update.DependentName.
func (p *Probe) Name() string {
	return p.name
}

// Update records the call and runs OnUpdate.
func (p *Probe) Update(ctx context.Context, subject identity.Identity, msg update.Message) error {
	p.log.add(Call{Dependent: p.name, Subject: subject, Message: msg})
	if p.OnUpdate != nil {
		return p.OnUpdate(ctx, subject, msg)
	}
	return nil
}

// DoneLog records update-done hook invocations.
type DoneLog struct {
	mu    sync.Mutex
	calls []Call
}

// Hook returns an update.UpdateDoneFunc feeding this log.
func (d *DoneLog) Hook() update.UpdateDoneFunc {
	return func(subject identity.Identity, msg update.Message) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.calls = append(d.calls, Call{Subject: subject, Message: msg})
	}
}

// Count returns the number of hook invocations.
func (d *DoneLog) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// Calls returns a copy of the invocations.
func (d *DoneLog) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}
