package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredQueue_PushCoalescesIdenticalPairs(t *testing.T) {
	var q deferredQueue
	s := ids(t, "s")[0]

	assert.True(t, q.push(deferredChange{subject: s, message: Changed, seq: 1}))
	assert.False(t, q.push(deferredChange{subject: s, message: Changed, seq: 2}))
	assert.True(t, q.push(deferredChange{subject: s, message: WillChange, seq: 3}))

	assert.Equal(t, 2, q.len())
	assert.Equal(t, int64(3), q.lastSeq())
}

func TestDeferredQueue_PopFrontRespectsLimit(t *testing.T) {
	var q deferredQueue
	all := ids(t, "a", "b", "c")
	for i, s := range all {
		q.push(deferredChange{subject: s, message: Changed, seq: int64(i + 1)})
	}

	c, ok := q.popFront(2)
	require.True(t, ok)
	assert.Equal(t, all[0], c.subject)

	c, ok = q.popFront(2)
	require.True(t, ok)
	assert.Equal(t, all[1], c.subject)

	_, ok = q.popFront(2)
	assert.False(t, ok, "entry with seq 3 is past the limit")
	assert.Equal(t, 1, q.len())
}

func TestDeferredQueue_TakeFirstAndCancel(t *testing.T) {
	var q deferredQueue
	subjects := ids(t, "a", "b")
	a, b := subjects[0], subjects[1]

	q.push(deferredChange{subject: a, message: Changed, seq: 1})
	q.push(deferredChange{subject: b, message: Changed, seq: 2})
	q.push(deferredChange{subject: a, message: WillChange, seq: 3})

	c, ok := q.takeFirst(a)
	require.True(t, ok)
	assert.Equal(t, Changed, c.message)

	removed := q.cancel(a)
	require.Len(t, removed, 1)
	assert.Equal(t, WillChange, removed[0].message)

	assert.Equal(t, 1, q.len())
	_, ok = q.takeFirst(a)
	assert.False(t, ok)
	assert.Empty(t, q.cancel(a))
}

func TestDeferredQueue_Empty(t *testing.T) {
	var q deferredQueue
	assert.Equal(t, int64(0), q.lastSeq())
	_, ok := q.popFront(100)
	assert.False(t, ok)
}
