package testutil

import "sync"

// DeterministicClock is a logical clock for trace fixtures. Each call gets a
// fresh time, shared by its INPUTS and OUTPUTS events, so fixtures built
// twice carry identical times.
type DeterministicClock struct {
	mu   sync.Mutex
	time uint64
}

// NewDeterministicClock creates a clock whose first time is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the next time. Safe for concurrent use.
func (c *DeterministicClock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time++
	return c.time
}
