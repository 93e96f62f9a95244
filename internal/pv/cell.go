package pv

import (
	"context"
	"sync"
)

// Cell is an owned value with store/subscribe semantics. Subscribers see
// the current value first and then every later value in order, except that
// a slow subscriber only keeps the latest one.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[chan T]struct{}
}

func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		subs:  make(map[chan T]struct{}),
	}
}

func (c *Cell[T]) Store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = v
	for ch := range c.subs {
		offer(ch, v)
	}
}

func (c *Cell[T]) Load() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Subscribe returns a channel that is closed once ctx is done.
func (c *Cell[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	c.mu.Lock()
	ch <- c.value
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

// offer replaces an undelivered value with v. Callers hold the cell lock,
// so there is room after the drain.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
