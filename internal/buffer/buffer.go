// Package buffer implements a fixed-capacity double buffer shared by one
// writer and one reader. The writer repopulates its half and publishes it,
// the reader drains its own half and swaps the published half in as a unit.
package buffer

import (
	"context"
	"sync"
)

type shared[T any] struct {
	mu     sync.Mutex
	data   []T
	ready  bool
	notify chan struct{}
	maxLen int
}

// New allocates both halves with capacity maxLen and returns the read and
// write sides. Nothing is allocated after this call.
func New[T any](maxLen int) (*Reader[T], *Writer[T]) {
	if maxLen <= 0 {
		panic("buffer: maxLen must be positive")
	}
	s := &shared[T]{
		data:   make([]T, 0, maxLen),
		notify: make(chan struct{}, 1),
		maxLen: maxLen,
	}
	r := &Reader[T]{
		s:    s,
		data: make([]T, 0, maxLen),
	}
	return r, &Writer[T]{s: s}
}

// Writer is the write side. Several producers may share one Writer as long
// as they never hold a WriteGuard at the same time.
type Writer[T any] struct {
	s *shared[T]
}

// WriteGuard grants exclusive access to the write half until Release.
type WriteGuard[T any] struct {
	s         *shared[T]
	stale     int
	truncated int
}

// Begin locks the write half. If the previous publish was never swapped in it
// is withdrawn, and its length is reported by Stale.
func (w *Writer[T]) Begin() WriteGuard[T] {
	w.s.mu.Lock()
	g := WriteGuard[T]{s: w.s}
	if w.s.ready {
		g.stale = len(w.s.data)
		w.s.ready = false
	}
	return g
}

// Publish marks the write half ready and wakes a reader blocked in Swap.
// Everything written under the preceding guard is visible to the reader
// that observes the ready flag.
func (w *Writer[T]) Publish() {
	w.s.mu.Lock()
	w.s.ready = true
	w.s.mu.Unlock()

	select {
	case w.s.notify <- struct{}{}:
	default:
	}
}

// MaxLen is the capacity shared by both halves.
func (w *Writer[T]) MaxLen() int { return w.s.maxLen }

func (g *WriteGuard[T]) Clear() { g.s.data = g.s.data[:0] }

// Push appends v, or counts it as truncated when the half is full.
func (g *WriteGuard[T]) Push(v T) bool {
	if len(g.s.data) == g.s.maxLen {
		g.truncated++
		return false
	}
	g.s.data = append(g.s.data, v)
	return true
}

// Extend appends as many of vs as fit and returns how many were taken.
func (g *WriteGuard[T]) Extend(vs []T) int {
	room := g.s.maxLen - len(g.s.data)
	if room > len(vs) {
		room = len(vs)
	}
	g.s.data = append(g.s.data, vs[:room]...)
	g.truncated += len(vs) - room
	return room
}

func (g *WriteGuard[T]) Len() int { return len(g.s.data) }

// Stale is the number of samples of an unread publish that Begin withdrew.
func (g *WriteGuard[T]) Stale() int { return g.stale }

// Truncated is the number of samples rejected because the half was full.
func (g *WriteGuard[T]) Truncated() int { return g.truncated }

// Release gives up exclusive access. It does not publish.
func (g *WriteGuard[T]) Release() { g.s.mu.Unlock() }

// Reader is the read side. It must only be used from one goroutine.
type Reader[T any] struct {
	s      *shared[T]
	data   []T
	cursor int
}

// TrySwap exchanges the halves if the write half is ready. The cursor is
// reset and the ready flag cleared on success.
func (r *Reader[T]) TrySwap() bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.ready {
		return false
	}
	r.data, r.s.data = r.s.data, r.data[:0]
	r.s.ready = false
	r.cursor = 0
	return true
}

// Swap blocks until a publish can be swapped in or ctx is done.
func (r *Reader[T]) Swap(ctx context.Context) error {
	for !r.TrySwap() {
		select {
		case <-r.s.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Ready delivers a token after each publish. A token may be stale, so the
// receiver must still call TrySwap.
func (r *Reader[T]) Ready() <-chan struct{} { return r.s.notify }

// Take returns up to n samples from the cursor and advances it. The slice
// aliases the read half and is valid until the next swap.
func (r *Reader[T]) Take(n int) []T {
	if n < 0 {
		n = 0
	}
	end := r.cursor + n
	if end > len(r.data) {
		end = len(r.data)
	}
	out := r.data[r.cursor:end]
	r.cursor = end
	return out
}

// Rewind moves the cursor back to the start of the read half.
func (r *Reader[T]) Rewind() { r.cursor = 0 }

func (r *Reader[T]) Remaining() int { return len(r.data) - r.cursor }

// Len is the number of samples held by the read half.
func (r *Reader[T]) Len() int { return len(r.data) }

func (r *Reader[T]) MaxLen() int { return r.s.maxLen }
