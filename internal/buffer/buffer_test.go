package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publish(w *Writer[int32], vals ...int32) (stale, truncated int) {
	g := w.Begin()
	g.Clear()
	g.Extend(vals)
	stale, truncated = g.Stale(), g.Truncated()
	g.Release()
	w.Publish()
	return stale, truncated
}

func TestSwapBeforePublish(t *testing.T) {
	r, _ := New[int32](4)

	assert.False(t, r.TrySwap())
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Take(3))
}

func TestFillAndDrain(t *testing.T) {
	r, w := New[int32](4)
	publish(w, 10, 20, 30, 40)

	require.True(t, r.TrySwap())
	assert.Equal(t, []int32{10, 20}, r.Take(2))
	assert.Equal(t, 2, r.Remaining())
	assert.Equal(t, []int32{30, 40}, r.Take(5))
	assert.Equal(t, 0, r.Remaining())

	// ready flag is cleared by the swap
	assert.False(t, r.TrySwap())

	publish(w, 1, 2, 3, 4)
	require.True(t, r.TrySwap())
	assert.Equal(t, []int32{1, 2, 3}, r.Take(3))
}

func TestRewind(t *testing.T) {
	r, w := New[int32](4)
	publish(w, 0, 5, 0, -5)
	require.True(t, r.TrySwap())

	assert.Equal(t, []int32{0, 5, 0, -5}, r.Take(4))
	r.Rewind()
	assert.Equal(t, []int32{0, 5}, r.Take(2))
}

func TestTruncatedAtCapacity(t *testing.T) {
	r, w := New[int32](3)

	_, truncated := publish(w, 1, 2, 3, 4, 5)
	assert.Equal(t, 2, truncated)

	g := w.Begin()
	assert.False(t, g.Push(9))
	assert.Equal(t, 1, g.Truncated())
	g.Release()

	require.True(t, r.TrySwap())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.MaxLen())
}

func TestStalePublishIsWithdrawn(t *testing.T) {
	r, w := New[int32](4)

	stale, _ := publish(w, 1, 2)
	assert.Zero(t, stale)

	// second publish overwrites the unread first one
	stale, _ = publish(w, 7, 8, 9)
	assert.Equal(t, 2, stale)

	require.True(t, r.TrySwap())
	assert.Equal(t, []int32{7, 8, 9}, r.Take(4))
	assert.False(t, r.TrySwap())
}

func TestBeginWithdrawsReadyUntilPublish(t *testing.T) {
	r, w := New[int32](4)
	publish(w, 1, 2)

	g := w.Begin()
	g.Clear()
	g.Push(3)
	g.Release()

	// rewritten but not yet published
	assert.False(t, r.TrySwap())

	w.Publish()
	require.True(t, r.TrySwap())
	assert.Equal(t, []int32{3}, r.Take(4))
}

func TestSwapBlocksUntilPublish(t *testing.T) {
	r, w := New[int32](2)

	done := make(chan error, 1)
	go func() { done <- r.Swap(context.Background()) }()

	select {
	case <-done:
		t.Fatal("swap returned before publish")
	case <-time.After(20 * time.Millisecond):
	}

	publish(w, 4, 2)
	require.NoError(t, <-done)
	assert.Equal(t, []int32{4, 2}, r.Take(2))
}

func TestSwapCancelled(t *testing.T) {
	r, _ := New[int32](2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Swap(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Every swapped-in half must hold a single complete publish.
func TestNoTornReads(t *testing.T) {
	const maxLen = 64
	const rounds = 2000
	r, w := New[int32](maxLen)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int32(1); i <= rounds; i++ {
			g := w.Begin()
			g.Clear()
			for j := 0; j < maxLen; j++ {
				g.Push(i)
			}
			g.Release()
			w.Publish()
		}
	}()

	last := int32(0)
	for last < rounds {
		if !r.TrySwap() {
			continue
		}
		got := r.Take(maxLen)
		require.Len(t, got, maxLen)
		for _, v := range got {
			require.Equal(t, got[0], v)
		}
		require.Greater(t, got[0], last)
		last = got[0]
	}
	wg.Wait()
}

func TestSteadyStateDoesNotAllocate(t *testing.T) {
	r, w := New[int32](8)
	vals := []int32{1, 2, 3, 4, 5, 6, 7, 8}

	allocs := testing.AllocsPerRun(100, func() {
		g := w.Begin()
		g.Clear()
		g.Extend(vals)
		g.Release()
		w.Publish()
		r.TrySwap()
		r.Take(8)
	})
	assert.Zero(t, allocs)
}
