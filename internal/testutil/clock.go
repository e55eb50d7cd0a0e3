package testutil

import (
	"sync"

	"github.com/roach88/depnotify/internal/update"
)

// DeterministicClock is a resettable logical clock.
//
// Unlike update.Clock it can be rewound. The harness resets it before every
// scenario so repeated runs stamp identical seq values, which keeps golden
// traces stable.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

var _ update.Sequencer = (*DeterministicClock)(nil)

// NewDeterministicClock returns a clock whose first Next() is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last value handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock so the next call to Next() returns 1.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
