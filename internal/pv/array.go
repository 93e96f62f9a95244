package pv

import (
	"context"
	"slices"
	"sync"
)

// ArrayVar is an in-memory flow-controlled array variable. A put stays
// pending until the reader accepts it; no second put lands before that.
type ArrayVar[T any] struct {
	mu        sync.Mutex
	data      []T
	pending   bool
	putGen    uint64
	acceptGen uint64
	updated   chan struct{}
	accepted  chan struct{}
	last      *Cell[[]T]
}

func NewArray[T any](maxLen int) *ArrayVar[T] {
	if maxLen <= 0 {
		panic("pv: maxLen must be positive")
	}
	return &ArrayVar[T]{
		data:     make([]T, 0, maxLen),
		updated:  make(chan struct{}, 1),
		accepted: make(chan struct{}, 1),
		last:     NewCell[[]T](nil),
	}
}

func (a *ArrayVar[T]) MaxLen() int { return cap(a.data) }

func (a *ArrayVar[T]) TryPut(vals []T) (bool, error) {
	_, ok, err := a.tryPut(vals)
	return ok, err
}

func (a *ArrayVar[T]) tryPut(vals []T) (uint64, bool, error) {
	if len(vals) > cap(a.data) {
		return 0, false, ErrTooLong
	}

	a.mu.Lock()
	if a.pending {
		a.mu.Unlock()
		return 0, false, nil
	}
	a.data = append(a.data[:0], vals...)
	a.pending = true
	a.putGen++
	gen := a.putGen
	a.mu.Unlock()

	a.last.Store(slices.Clone(vals))
	signal(a.updated)
	return gen, true, nil
}

// Put publishes vals and blocks until the reader accepts them.
func (a *ArrayVar[T]) Put(ctx context.Context, vals []T) error {
	for {
		gen, ok, err := a.tryPut(vals)
		if err != nil {
			return err
		}
		if ok {
			return a.waitAccepted(ctx, gen)
		}
		if err := a.waitAccepted(ctx, a.currentGen()); err != nil {
			return err
		}
	}
}

func (a *ArrayVar[T]) currentGen() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.putGen
}

func (a *ArrayVar[T]) waitAccepted(ctx context.Context, gen uint64) error {
	for {
		a.mu.Lock()
		done := a.acceptGen >= gen
		a.mu.Unlock()
		if done {
			// another putter may be parked on the same token
			signal(a.accepted)
			return nil
		}
		select {
		case <-a.accepted:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Wait blocks until a put is pending and returns it without copying.
func (a *ArrayVar[T]) Wait(ctx context.Context) ([]T, error) {
	for {
		a.mu.Lock()
		if a.pending {
			data := a.data
			a.mu.Unlock()
			return data, nil
		}
		a.mu.Unlock()

		select {
		case <-a.updated:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Accept releases the pending put.
func (a *ArrayVar[T]) Accept() {
	a.mu.Lock()
	if !a.pending {
		a.mu.Unlock()
		return
	}
	a.pending = false
	a.acceptGen = a.putGen
	a.mu.Unlock()
	signal(a.accepted)
}

// Read returns the last value put.
func (a *ArrayVar[T]) Read() []T { return a.last.Load() }

func (a *ArrayVar[T]) Subscribe(ctx context.Context) <-chan []T {
	return a.last.Subscribe(ctx)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var (
	_ Array[float64]      = (*ArrayVar[float64])(nil)
	_ ArraySink[float64]  = (*ArrayVar[float64])(nil)
	_ Variable[[]float64] = (*ArrayVar[float64])(nil)
)
