package update

import "github.com/roach88/depnotify/internal/identity"

// DefaultShards is the default number of dependency table shards.
const DefaultShards = 256

// dependencyTable maps subjects to their ordered dependents.
//
// Sharding keeps each map small so that full-table scans (removing one
// dependent from every subject) and rehashing stay cheap. The table has no
// lock of its own: every method must be called with the engine lock held.
//
// INVARIANTS:
//   - no entry is ever empty; an entry is dropped when its last dependent goes
//   - size equals the sum of all entry lengths
type dependencyTable struct {
	shards []map[identity.Identity][]Dependent
	size   int
}

func newDependencyTable(shards int) *dependencyTable {
	if shards < 1 {
		shards = 1
	}
	t := &dependencyTable{
		shards: make([]map[identity.Identity][]Dependent, shards),
	}
	for i := range t.shards {
		t.shards[i] = make(map[identity.Identity][]Dependent)
	}
	return t
}

func (t *dependencyTable) shard(id identity.Identity) map[identity.Identity][]Dependent {
	return t.shards[int(id.Slot())%len(t.shards)]
}

// get returns the live dependents slice. Callers must copy before
// releasing the lock.
func (t *dependencyTable) get(id identity.Identity) []Dependent {
	return t.shard(id)[id]
}

// add appends d and reports whether a new entry was created.
func (t *dependencyTable) add(id identity.Identity, d Dependent) bool {
	m := t.shard(id)
	list, existed := m[id]
	m[id] = append(list, d)
	t.size++
	return !existed
}

// count returns the number of registrations for id.
func (t *dependencyTable) count(id identity.Identity) int {
	return len(t.shard(id)[id])
}

// total returns the number of registrations across all subjects.
func (t *dependencyTable) total() int {
	return t.size
}

// subjects returns the number of entries.
func (t *dependencyTable) subjects() int {
	n := 0
	for _, m := range t.shards {
		n += len(m)
	}
	return n
}

// removeEntry drops the whole entry for id and returns how many
// registrations it held.
func (t *dependencyTable) removeEntry(id identity.Identity) int {
	m := t.shard(id)
	n := len(m[id])
	if n == 0 {
		return 0
	}
	delete(m, id)
	t.size -= n
	return n
}

// removeFrom removes every occurrence of d from id's entry.
//
// sawOther reports whether any dependent other than d was encountered;
// dropped reports whether the entry became empty and was deleted.
func (t *dependencyTable) removeFrom(id identity.Identity, d Dependent) (removed int, sawOther, dropped bool) {
	m := t.shard(id)
	list, ok := m[id]
	if !ok {
		return 0, false, false
	}

	kept := list[:0]
	for _, dep := range list {
		if dep == d {
			removed++
			continue
		}
		sawOther = true
		kept = append(kept, dep)
	}
	// Clear the tail so removed dependents are not retained by the array.
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}

	t.size -= removed
	if len(kept) == 0 {
		delete(m, id)
		return removed, sawOther, true
	}
	m[id] = kept
	return removed, sawOther, false
}

// removeEverywhere removes every occurrence of d from every entry and
// returns the identities whose entries were dropped.
func (t *dependencyTable) removeEverywhere(d Dependent) (removed int, dropped []identity.Identity) {
	for _, m := range t.shards {
		for id := range m {
			n, _, gone := t.removeFrom(id, d)
			removed += n
			if gone {
				dropped = append(dropped, id)
			}
		}
	}
	return removed, dropped
}
