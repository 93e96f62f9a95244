package pv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	panic("unreachable")
}

func TestCellSubscribeSeesCurrentThenUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCell(true)
	ch := c.Subscribe(ctx)
	assert.True(t, recv(t, ch))

	c.Store(false)
	assert.False(t, recv(t, ch))
	assert.False(t, c.Load())
}

func TestCellSlowSubscriberKeepsLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCell(0)
	ch := c.Subscribe(ctx)
	for i := 1; i <= 5; i++ {
		c.Store(i)
	}
	assert.Equal(t, 5, recv(t, ch))
}

func TestCellSubscriptionClosedOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCell(1)
	ch := c.Subscribe(ctx)
	recv(t, ch)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestScalarWait(t *testing.T) {
	s := NewScalar(0.0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Put(1.5)
	}()

	v, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)
	assert.Equal(t, 1.5, s.Read())
}

func TestScalarWaitCancelled(t *testing.T) {
	s := NewScalar(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestArrayPutBlocksUntilAccepted(t *testing.T) {
	a := NewArray[float64](4)
	ctx := context.Background()

	putDone := make(chan error, 1)
	go func() { putDone <- a.Put(ctx, []float64{1, 2, 3}) }()

	got, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)

	select {
	case <-putDone:
		t.Fatal("put returned before accept")
	case <-time.After(20 * time.Millisecond):
	}

	a.Accept()
	require.NoError(t, recv(t, putDone))
	assert.Equal(t, []float64{1, 2, 3}, a.Read())
}

func TestArrayTryPut(t *testing.T) {
	a := NewArray[int](2)

	ok, err := a.TryPut([]int{1, 2, 3})
	assert.ErrorIs(t, err, ErrTooLong)
	assert.False(t, ok)

	ok, err = a.TryPut([]int{1})
	require.NoError(t, err)
	assert.True(t, ok)

	// previous value not accepted yet
	ok, err = a.TryPut([]int{2})
	require.NoError(t, err)
	assert.False(t, ok)

	a.Accept()
	ok, err = a.TryPut([]int{2})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, a.MaxLen())
}

func TestMergeKeepsPerSourceOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan int)
	b := make(chan int)
	out := Merge(ctx, a, b)

	go func() {
		for i := 0; i < 50; i++ {
			a <- i
		}
		close(a)
	}()
	go func() {
		for i := 100; i < 150; i++ {
			b <- i
		}
		close(b)
	}()

	var fromA, fromB []int
	for v := range out {
		if v < 100 {
			fromA = append(fromA, v)
		} else {
			fromB = append(fromB, v)
		}
	}

	require.Len(t, fromA, 50)
	require.Len(t, fromB, 50)
	assert.IsIncreasing(t, fromA)
	assert.IsIncreasing(t, fromB)
}

func TestMap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := make(chan int, 2)
	src <- 2
	src <- 3
	close(src)

	var got []int
	for v := range Map(ctx, src, func(x int) int { return x * 10 }) {
		got = append(got, v)
	}
	assert.Equal(t, []int{20, 30}, got)
}
