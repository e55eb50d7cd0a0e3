package update

import (
	"context"
	"fmt"
	"reflect"

	"github.com/roach88/depnotify/internal/identity"
)

// Dependent observes subjects.
//
// Dependents are compared with == when they are removed, so
// implementations must be comparable; use pointer receivers. AddDependent
// rejects nil and non-comparable values with ErrInvalidSubject.
//
// Update runs on the goroutine that triggered the dispatch, outside the
// engine lock. It may call back into the engine. A non-nil error aborts the
// dispatch it was called from.
type Dependent interface {
	Update(ctx context.Context, subject identity.Identity, msg Message) error
}

// UpdateFunc is the signature wrapped by DependentFunc.
type UpdateFunc func(ctx context.Context, subject identity.Identity, msg Message) error

// FuncDependent adapts a function to the Dependent interface.
// Always use it through the pointer returned by DependentFunc; the pointer
// is what gives the dependent its identity.
type FuncDependent struct {
	name string
	fn   UpdateFunc
}

// DependentFunc wraps fn as a Dependent. name is used in logs and traces.
func DependentFunc(name string, fn UpdateFunc) *FuncDependent {
	return &FuncDependent{name: name, fn: fn}
}

// Update calls the wrapped function.
func (f *FuncDependent) Update(ctx context.Context, subject identity.Identity, msg Message) error {
	return f.fn(ctx, subject, msg)
}

// Name returns the label given to DependentFunc.
func (f *FuncDependent) Name() string {
	return f.name
}

// checkDependent rejects nil, typed-nil and non-comparable dependents.
func checkDependent(d Dependent) error {
	if d == nil {
		return fmt.Errorf("%w: nil dependent", ErrInvalidSubject)
	}
	rv := reflect.ValueOf(d)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Slice, reflect.UnsafePointer:
		if rv.IsNil() {
			return fmt.Errorf("%w: nil %T dependent", ErrInvalidSubject, d)
		}
	}
	if !rv.Comparable() {
		return fmt.Errorf("%w: %T is not comparable", ErrInvalidSubject, d)
	}
	return nil
}

// DependentName returns a label for d: its Name() or String() if it has
// one, otherwise its dynamic type.
func DependentName(d Dependent) string {
	switch v := d.(type) {
	case nil:
		return ""
	case interface{ Name() string }:
		return v.Name()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%T", d)
	}
}
