package pv

import "context"

// Scalar is an in-memory scalar variable. Put is the control-system side,
// Wait/Read/Subscribe the device side.
type Scalar[T any] struct {
	cell    *Cell[T]
	updated chan struct{}
}

func NewScalar[T any](initial T) *Scalar[T] {
	return &Scalar[T]{
		cell:    NewCell(initial),
		updated: make(chan struct{}, 1),
	}
}

func (s *Scalar[T]) Put(v T) {
	s.cell.Store(v)
	select {
	case s.updated <- struct{}{}:
	default:
	}
}

// Wait returns the latest value after the next Put. Puts made while nobody
// waits collapse into one update.
func (s *Scalar[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.updated:
		return s.cell.Load(), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Scalar[T]) Read() T { return s.cell.Load() }

func (s *Scalar[T]) Subscribe(ctx context.Context) <-chan T {
	return s.cell.Subscribe(ctx)
}

var _ Variable[float64] = (*Scalar[float64])(nil)
