package update

import "errors"

var (
	// ErrInvalidSubject is returned when a subject handle cannot be resolved
	// to a live identity, or when AddDependent is given a nil dependent.
	// Resolution failures wrap the identity cause as well.
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrInvalidArgument is returned by RemoveDependent when both the
	// subject and the dependent are omitted.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOverflow marks a dispatch whose snapshot exceeded MaxDependents.
	// It is logged and recorded, never returned: the excess dependents are
	// simply not notified by that call.
	ErrOverflow = errors.New("dispatch snapshot overflow")
)

// IsInvalidSubject returns true if err is or wraps ErrInvalidSubject.
func IsInvalidSubject(err error) bool {
	return errors.Is(err, ErrInvalidSubject)
}
