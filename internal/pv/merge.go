package pv

import (
	"context"
	"sync"
)

// Merge fans several streams into one. Values from one source keep their
// order; values from different sources interleave in arrival order. The
// result is closed when every source is closed or ctx is done.
func Merge[T any](ctx context.Context, srcs ...<-chan T) <-chan T {
	out := make(chan T)

	var wg sync.WaitGroup
	wg.Add(len(srcs))
	for _, src := range srcs {
		go func(src <-chan T) {
			defer wg.Done()
			for {
				select {
				case v, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- v:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Map applies fn to every value of src.
func Map[T, U any](ctx context.Context, src <-chan T, fn func(T) U) <-chan U {
	out := make(chan U)
	go func() {
		defer close(out)
		for {
			select {
			case v, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- fn(v):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
