// Package demand accumulates sample requests from the hardware side and
// hands them to the consumer in bounded chunks.
package demand

import (
	"context"
	"errors"
	"sync"
)

var ErrInvalidRange = errors.New("demand: invalid range")

// Counter is a non-negative counter. Add may be called from any goroutine,
// WaitSub reserves demand atomically so no unit is ever served twice.
type Counter struct {
	mu     sync.Mutex
	value  uint64
	notify chan struct{}
}

func NewCounter(initial uint64) *Counter {
	return &Counter{
		value:  initial,
		notify: make(chan struct{}, 1),
	}
}

func (c *Counter) Add(n uint64) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	c.value += n
	c.mu.Unlock()
	c.wake()
}

// Load returns the outstanding demand.
func (c *Counter) Load() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// WaitSub blocks until at least min units are outstanding, then subtracts
// and returns min(outstanding, max).
func (c *Counter) WaitSub(ctx context.Context, min, max uint64) (uint64, error) {
	if min > max || max == 0 {
		return 0, ErrInvalidRange
	}
	for {
		if n, ok := c.trySub(min, max); ok {
			return n, nil
		}
		select {
		case <-c.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (c *Counter) trySub(min, max uint64) (uint64, bool) {
	c.mu.Lock()
	if c.value < min {
		c.mu.Unlock()
		return 0, false
	}
	n := c.value
	if n > max {
		n = max
	}
	c.value -= n
	left := c.value
	c.mu.Unlock()

	// pass the wakeup on to another waiter
	if left > 0 {
		c.wake()
	}
	return n, true
}

func (c *Counter) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
