// Package identity canonicalises subject handles into comparable tokens.
//
// A subject may be referred to through many handles: a pointer, a wrapper
// that knows its base object, a name. The Registry maps every handle that
// denotes the same object to one Identity, and reference counts that
// Identity while something (a dependency entry, a queued change, a live
// dispatch) still needs it.
//
// # Canonical keys
//
//   - Identity: resolves to itself while its slot is live, ErrStale after.
//   - Identifier: resolves through SubjectIdentity(), the base key.
//   - string: NFC normalised, so composed and decomposed forms match.
//   - any other comparable value: used as is.
//
// nil and non-comparable handles (slices, maps, funcs) are ErrUnresolvable.
//
// # Generations
//
// Each slot carries a generation counter. When the last reference is
// released the slot is recycled and its generation bumped, so an Identity
// kept past that point no longer matches and is reported as stale instead
// of silently aliasing a newer subject.
package identity
