package identity

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnresolvable is returned for nil or non-comparable handles.
	ErrUnresolvable = errors.New("identity: handle cannot be resolved")

	// ErrStale is returned for an Identity whose slot has been recycled.
	ErrStale = errors.New("identity: stale identity")

	// ErrUnknown is returned by Lookup for a handle that was never acquired.
	ErrUnknown = errors.New("identity: handle not registered")
)

// Identity is the canonical token for a subject.
// The zero value is never issued and never valid.
type Identity struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether id is the zero Identity.
func (id Identity) IsZero() bool {
	return id.gen == 0
}

// Slot returns the arena index. Used for sharding.
func (id Identity) Slot() uint32 {
	return id.slot
}

// String renders the token as subject#slot.gen.
func (id Identity) String() string {
	if id.IsZero() {
		return "subject#none"
	}
	return fmt.Sprintf("subject#%d.%d", id.slot, id.gen)
}

// Identifier is implemented by handles that are views onto another object.
// SubjectIdentity returns the key of the underlying base object; all views
// of one object must return equal keys.
type Identifier interface {
	SubjectIdentity() any
}

type slotEntry struct {
	key  any
	name string
	gen  uint32
	refs int
	live bool
}

// Registry interns handles into Identities.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	slots []slotEntry
	free  []uint32
	byKey map[any]uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey: make(map[any]uint32),
	}
}

// Acquire resolves handle, interning it if needed, and takes one reference.
// Every successful Acquire must be paired with a Release.
func (r *Registry) Acquire(handle any) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := handle.(Identity); ok {
		if err := r.checkLocked(id); err != nil {
			return Identity{}, err
		}
		r.slots[id.slot].refs++
		return id, nil
	}

	key, name, err := canonicalKey(handle)
	if err != nil {
		return Identity{}, err
	}

	if slot, ok := r.byKey[key]; ok {
		e := &r.slots[slot]
		e.refs++
		return Identity{slot: slot, gen: e.gen}, nil
	}

	var slot uint32
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		slot = uint32(len(r.slots))
		r.slots = append(r.slots, slotEntry{})
	}

	e := &r.slots[slot]
	e.gen++
	e.key = key
	e.name = name
	e.refs = 1
	e.live = true
	r.byKey[key] = slot

	return Identity{slot: slot, gen: e.gen}, nil
}

// Lookup resolves handle without interning it and without taking a
// reference. Returns ErrUnknown if the handle has no live Identity.
func (r *Registry) Lookup(handle any) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := handle.(Identity); ok {
		if err := r.checkLocked(id); err != nil {
			return Identity{}, err
		}
		return id, nil
	}

	key, _, err := canonicalKey(handle)
	if err != nil {
		return Identity{}, err
	}

	slot, ok := r.byKey[key]
	if !ok {
		return Identity{}, ErrUnknown
	}
	return Identity{slot: slot, gen: r.slots[slot].gen}, nil
}

// Retain takes an additional reference on a live Identity.
func (r *Registry) Retain(id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(id); err != nil {
		return err
	}
	r.slots[id.slot].refs++
	return nil
}

// Release drops one reference. The slot is recycled when the count reaches
// zero. Releasing a stale Identity is a no-op.
func (r *Registry) Release(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.checkLocked(id) != nil {
		return
	}

	e := &r.slots[id.slot]
	e.refs--
	if e.refs > 0 {
		return
	}

	delete(r.byKey, e.key)
	e.key = nil
	e.name = ""
	e.refs = 0
	e.live = false
	r.free = append(r.free, id.slot)
}

// Valid reports whether id still denotes a live subject.
func (r *Registry) Valid(id Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkLocked(id) == nil
}

// Name returns a human readable label for id, or id.String() when stale.
func (r *Registry) Name(id Identity) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.checkLocked(id) != nil {
		return id.String()
	}
	return r.slots[id.slot].name
}

// Len returns the number of live identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

func (r *Registry) checkLocked(id Identity) error {
	if id.IsZero() || int(id.slot) >= len(r.slots) {
		return ErrStale
	}
	e := r.slots[id.slot]
	if !e.live || e.gen != id.gen {
		return ErrStale
	}
	return nil
}

// canonicalKey maps a handle to the key used for interning.
func canonicalKey(handle any) (any, string, error) {
	if isNil(handle) {
		return nil, "", ErrUnresolvable
	}

	if v, ok := handle.(Identifier); ok {
		handle = v.SubjectIdentity()
		if isNil(handle) {
			return nil, "", ErrUnresolvable
		}
	}

	if s, ok := handle.(string); ok {
		s = norm.NFC.String(s)
		if s == "" {
			return nil, "", ErrUnresolvable
		}
		return s, s, nil
	}

	if !reflect.TypeOf(handle).Comparable() {
		return nil, "", fmt.Errorf("%w: %T is not comparable", ErrUnresolvable, handle)
	}

	return handle, displayName(handle), nil
}

func isNil(handle any) bool {
	if handle == nil {
		return true
	}
	rv := reflect.ValueOf(handle)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

func displayName(key any) string {
	if s, ok := key.(fmt.Stringer); ok {
		return s.String()
	}
	if reflect.ValueOf(key).Kind() == reflect.Pointer {
		return fmt.Sprintf("%T(%p)", key, key)
	}
	return fmt.Sprintf("%T(%v)", key, key)
}
