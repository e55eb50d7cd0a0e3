package update

import "github.com/roach88/depnotify/internal/identity"

// deferredChange is one queued (subject, message) pair.
// seq orders the queue and bounds a drain to what was queued before it.
type deferredChange struct {
	subject identity.Identity
	message Message
	seq     int64
}

// deferredQueue is the FIFO of pending changes.
//
// INVARIANTS:
//   - at most one entry per (subject, message)
//   - seq strictly increases from front to back
//
// Must be used with the engine lock held.
type deferredQueue struct {
	entries []deferredChange
}

func (q *deferredQueue) len() int {
	return len(q.entries)
}

// contains is a linear scan; queues are expected to stay short.
func (q *deferredQueue) contains(subject identity.Identity, msg Message) bool {
	for _, c := range q.entries {
		if c.subject == subject && c.message == msg {
			return true
		}
	}
	return false
}

// push appends c unless the same pair is already queued.
func (q *deferredQueue) push(c deferredChange) bool {
	if q.contains(c.subject, c.message) {
		return false
	}
	q.entries = append(q.entries, c)
	return true
}

// lastSeq returns the seq of the back entry, or 0 when empty.
func (q *deferredQueue) lastSeq() int64 {
	if len(q.entries) == 0 {
		return 0
	}
	return q.entries[len(q.entries)-1].seq
}

// popFront removes the front entry if its seq is at most limit.
func (q *deferredQueue) popFront(limit int64) (deferredChange, bool) {
	if len(q.entries) == 0 || q.entries[0].seq > limit {
		return deferredChange{}, false
	}
	c := q.entries[0]
	q.removeAt(0)
	return c, true
}

// takeFirst removes the first entry for subject.
func (q *deferredQueue) takeFirst(subject identity.Identity) (deferredChange, bool) {
	for i, c := range q.entries {
		if c.subject == subject {
			q.removeAt(i)
			return c, true
		}
	}
	return deferredChange{}, false
}

// cancel removes every entry for subject and returns them.
func (q *deferredQueue) cancel(subject identity.Identity) []deferredChange {
	var removed []deferredChange
	kept := q.entries[:0]
	for _, c := range q.entries {
		if c.subject == subject {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = deferredChange{}
	}
	q.entries = kept
	return removed
}

func (q *deferredQueue) removeAt(i int) {
	copy(q.entries[i:], q.entries[i+1:])
	q.entries[len(q.entries)-1] = deferredChange{}
	q.entries = q.entries[:len(q.entries)-1]
}
