package harness

import (
	"fmt"

	"github.com/roach88/depnotify/internal/store"
	"github.com/roach88/depnotify/internal/update"
)

// Delivery is one dependent notification taken from the trace.
type Delivery struct {
	Dependent string         `json:"dependent"`
	Subject   string         `json:"subject"`
	Message   update.Message `json:"message"`
}

// String renders the delivery as dependent@subject:message, the form used
// by delivery_order assertions.
func (d Delivery) String() string {
	return fmt.Sprintf("%s@%s:%s", d.Dependent, d.Subject, d.Message)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// RunID identifies the journal run, if one was written.
	RunID string `json:"run_id"`

	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every engine event in seq order.
	Trace []store.EventRecord `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the engine state after the last step.
	Final update.Stats `json:"final"`
}

// NewResult creates a new passing result.
func NewResult(scenario, runID string) *Result {
	return &Result{
		Scenario: scenario,
		RunID:    runID,
		Pass:     true,
		Trace:    []store.EventRecord{},
		Errors:   []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Deliveries returns the deliver events of the trace in order.
func (r *Result) Deliveries() []Delivery {
	var out []Delivery
	for _, ev := range r.Trace {
		if ev.Kind != update.EventDeliver {
			continue
		}
		out = append(out, Delivery{Dependent: ev.Dependent, Subject: ev.Subject, Message: ev.Message})
	}
	return out
}

// Count returns how many trace events have the given kind.
func (r *Result) Count(kind update.EventKind) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
