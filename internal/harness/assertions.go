package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/depnotify/internal/store"
	"github.com/roach88/depnotify/internal/update"
)

// Assertion validates the trace or the final engine state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "delivery_order": deliveries appear in this relative order
	// - "delivery_count": a dependent was notified exactly Count times
	// - "done_count": the update-done hook fired exactly Count times
	// - "event_count": Kind events appear exactly Count times
	// - "pending_count": Count changes are still queued at the end
	// - "registration_count": Count registrations remain at the end
	Type string `yaml:"type"`

	// Deliveries lists dependent@subject:message entries (delivery_order).
	Deliveries []string `yaml:"deliveries,omitempty"`

	// Exact requires Deliveries to be the complete delivery list
	// (delivery_order).
	Exact bool `yaml:"exact,omitempty"`

	// Dependent filters delivery_count.
	Dependent string `yaml:"dependent,omitempty"`

	// Subject filters delivery_count, done_count and registration_count.
	Subject string `yaml:"subject,omitempty"`

	// Message filters delivery_count and done_count.
	Message *update.Message `yaml:"message,omitempty"`

	// Kind is the event kind (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number.
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertDeliveryOrder     = "delivery_order"
	AssertDeliveryCount     = "delivery_count"
	AssertDoneCount         = "done_count"
	AssertEventCount        = "event_count"
	AssertPendingCount      = "pending_count"
	AssertRegistrationCount = "registration_count"
)

var knownKinds = map[string]bool{
	string(update.EventDeliver):  true,
	string(update.EventDone):     true,
	string(update.EventDefer):    true,
	string(update.EventCoalesce): true,
	string(update.EventCancel):   true,
	string(update.EventRequeue):  true,
	string(update.EventOverflow): true,
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, declared map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertDeliveryOrder:
		if len(a.Deliveries) == 0 && !a.Exact {
			return fmt.Errorf("assertions[%d]: deliveries list is required for delivery_order", index)
		}
		for j, d := range a.Deliveries {
			parsed, err := parseDelivery(d)
			if err != nil {
				return fmt.Errorf("assertions[%d].deliveries[%d]: %w", index, j, err)
			}
			if !declared[parsed.Dependent] {
				return fmt.Errorf("assertions[%d].deliveries[%d]: undeclared dependent %q", index, j, parsed.Dependent)
			}
		}
	case AssertDeliveryCount:
		if a.Dependent == "" {
			return fmt.Errorf("assertions[%d]: dependent is required for delivery_count", index)
		}
		if !declared[a.Dependent] {
			return fmt.Errorf("assertions[%d]: undeclared dependent %q", index, a.Dependent)
		}
	case AssertEventCount:
		if !knownKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
	case AssertDoneCount, AssertPendingCount, AssertRegistrationCount:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// parseDelivery parses dependent@subject:message.
func parseDelivery(s string) (Delivery, error) {
	dep, rest, ok := strings.Cut(s, "@")
	if !ok || dep == "" {
		return Delivery{}, fmt.Errorf("malformed delivery %q: want dependent@subject:message", s)
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return Delivery{}, fmt.Errorf("malformed delivery %q: want dependent@subject:message", s)
	}
	msg, err := update.ParseMessage(rest[i+1:])
	if err != nil {
		return Delivery{}, fmt.Errorf("malformed delivery %q: %w", s, err)
	}
	return Delivery{Dependent: dep, Subject: rest[:i], Message: msg}, nil
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string              // Assertion type for categorization
	Expected string              // Human-readable expected outcome
	Actual   string              // Human-readable actual outcome
	Trace    []store.EventRecord // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
	}

	return buf.String()
}

// assertDeliveryOrder checks that the listed deliveries occur in order.
// Intervening deliveries are allowed unless Exact is set.
func assertDeliveryOrder(result *Result, a Assertion) error {
	actual := result.Deliveries()
	actualStr := make([]string, len(actual))
	for i, d := range actual {
		actualStr[i] = d.String()
	}

	want := make([]string, len(a.Deliveries))
	for i, s := range a.Deliveries {
		d, err := parseDelivery(s)
		if err != nil {
			return err
		}
		// Normalise message spelling so "Changed" matches "changed".
		want[i] = d.String()
	}

	if a.Exact {
		if strings.Join(actualStr, ",") != strings.Join(want, ",") {
			return &AssertionError{
				Type:     AssertDeliveryOrder,
				Expected: fmt.Sprintf("exactly %v", want),
				Actual:   fmt.Sprintf("%v", actualStr),
				Trace:    result.Trace,
			}
		}
		return nil
	}

	pos := 0
	for _, w := range want {
		found := false
		for pos < len(actualStr) {
			pos++
			if actualStr[pos-1] == w {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertDeliveryOrder,
				Expected: fmt.Sprintf("deliveries in order: %v", want),
				Actual:   fmt.Sprintf("%s missing or out of order in %v", w, actualStr),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// matches reports whether ev passes the assertion's subject and message
// filters.
func (a *Assertion) matches(ev store.EventRecord) bool {
	if a.Subject != "" && ev.Subject != a.Subject {
		return false
	}
	if a.Message != nil && ev.Message != *a.Message {
		return false
	}
	return true
}

func assertDeliveryCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Trace {
		if ev.Kind == update.EventDeliver && ev.Dependent == a.Dependent && a.matches(ev) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertDeliveryCount,
			Expected: fmt.Sprintf("%d deliveries to %s", a.Count, a.Dependent),
			Actual:   fmt.Sprintf("%d deliveries", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertDoneCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Trace {
		if ev.Kind == update.EventDone && a.matches(ev) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertDoneCount,
			Expected: fmt.Sprintf("%d update-done calls", a.Count),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertEventCount(result *Result, a Assertion) error {
	count := result.Count(update.EventKind(a.Kind))
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// AssertionContext provides the live engine for final-state assertions.
type AssertionContext struct {
	Engine *update.Engine
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// actx may be nil, in which case final-state assertions use result.Final
// and cannot filter by subject.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertDeliveryOrder:
			err = assertDeliveryOrder(result, a)
		case AssertDeliveryCount:
			err = assertDeliveryCount(result, a)
		case AssertDoneCount:
			err = assertDoneCount(result, a)
		case AssertEventCount:
			err = assertEventCount(result, a)
		case AssertPendingCount:
			err = compareCount(AssertPendingCount, "queued changes", a.Count, result.Final.Pending)
		case AssertRegistrationCount:
			got := result.Final.Registrations
			if a.Subject != "" {
				if actx == nil || actx.Engine == nil {
					err = fmt.Errorf("assertion[%d]: registration_count by subject requires engine context", i)
					break
				}
				got = actx.Engine.CountDependencies(a.Subject)
			}
			err = compareCount(AssertRegistrationCount, "registrations", a.Count, got)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func compareCount(kind, what string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%d %s", want, what),
		Actual:   fmt.Sprintf("%d %s", got, what),
	}
}
