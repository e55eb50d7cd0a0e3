package update

import "github.com/roach88/depnotify/internal/identity"

// Resolver canonicalises subject handles.
//
// The engine calls it only while holding its own lock, so implementations
// must not call back into the engine. *identity.Registry is the standard
// implementation.
type Resolver interface {
	// Acquire resolves handle, interning it if needed, and takes a reference.
	Acquire(handle any) (identity.Identity, error)
	// Lookup resolves handle without interning or taking a reference.
	// It returns identity.ErrUnknown for a handle nobody holds.
	Lookup(handle any) (identity.Identity, error)
	// Retain takes another reference on a live identity.
	Retain(id identity.Identity) error
	// Release drops a reference.
	Release(id identity.Identity)
	// Name returns a display label.
	Name(id identity.Identity) string
}

var _ Resolver = (*identity.Registry)(nil)
