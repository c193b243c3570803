package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	id       int
	resets   atomic.Int32
	closes   atomic.Int32
	resetErr error
}

func (c *fakeContext) Page() Page { return nil }

func (c *fakeContext) Reset() error {
	c.resets.Add(1)
	return c.resetErr
}

func (c *fakeContext) Close() error {
	c.closes.Add(1)
	return nil
}

type fakeFactory struct {
	mu       sync.Mutex
	created  []*fakeContext
	failNext bool
	closed   atomic.Bool
}

func (f *fakeFactory) NewContext() (Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext {
		f.failNext = false
		return nil, errors.New("launch failed")
	}
	c := &fakeContext{id: len(f.created)}
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeFactory) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, 3)
	defer pool.Close(context.Background())

	var current, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, factory.count(), 3, "contexts are reused, never more than one per slot")
}

func TestPool_ResetsContextAfterSuccess(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, 1)
	defer pool.Close(context.Background())

	var seen []Context
	for i := 0; i < 3; i++ {
		err := pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
			seen = append(seen, bc)
			return nil
		})
		require.NoError(t, err)
	}

	require.Len(t, seen, 3)
	assert.Same(t, seen[0], seen[1])
	assert.Same(t, seen[1], seen[2])

	fc := seen[0].(*fakeContext)
	assert.Equal(t, int32(3), fc.resets.Load())
	assert.Equal(t, int32(0), fc.closes.Load())
}

func TestPool_ReplacesContextAfterFailure(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, 1)
	defer pool.Close(context.Background())

	var failed Context
	wantErr := errors.New("portal exploded")
	err := pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		failed = bc
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	var next Context
	err = pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		next = bc
		return nil
	})
	require.NoError(t, err)

	assert.NotSame(t, failed, next, "a failed context must not be reused")
	assert.Equal(t, int32(1), failed.(*fakeContext).closes.Load())
	assert.Equal(t, int32(0), failed.(*fakeContext).resets.Load())
	assert.Equal(t, int32(0), next.(*fakeContext).closes.Load())
}

func TestPool_RecoversFromPanic(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, 1)
	defer pool.Close(context.Background())

	err := pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow panicked: boom")

	// The slot is back and usable
	err = pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, factory.count())
}

func TestPool_ReplacesContextWhenResetFails(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, 1)
	defer pool.Close(context.Background())

	var first Context
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		first = bc
		bc.(*fakeContext).resetErr = errors.New("tab stuck")
		return nil
	}))

	var second Context
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		second = bc
		return nil
	}))

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(1), first.(*fakeContext).closes.Load())
}

func TestPool_ContextCreationFailureReleasesSlot(t *testing.T) {
	factory := &fakeFactory{failNext: true}
	pool := NewPool(factory, 1)
	defer pool.Close(context.Background())

	err := pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		t.Fatal("workflow must not run without a context")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create browser context")

	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		return nil
	}))
}

func TestPool_WaitingSubmitHonorsContext(t *testing.T) {
	pool := NewPool(&fakeFactory{}, 1)
	defer pool.Close(context.Background())

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, func(ctx context.Context, bc Context) error {
		t.Fatal("should not acquire a busy slot")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(hold)
}

func TestPool_ServesWaitersInArrivalOrder(t *testing.T) {
	pool := NewPool(&fakeFactory{}, 1)
	defer pool.Close(context.Background())

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
		}(i)
		// Make sure waiter i is queued before waiter i+1 arrives
		require.Eventually(t, func() bool {
			return pool.Stats().Waiting == i+1
		}, time.Second, time.Millisecond)
		time.Sleep(5 * time.Millisecond)
	}

	close(hold)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestPool_Run(t *testing.T) {
	pool := NewPool(&fakeFactory{}, 2)
	defer pool.Close(context.Background())

	got, err := Run(context.Background(), pool, func(ctx context.Context, bc Context) (string, error) {
		return "token-123", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "token-123", got)

	_, err = Run(context.Background(), pool, func(ctx context.Context, bc Context) (int, error) {
		return 0, errors.New("nope")
	})
	assert.EqualError(t, err, "nope")
}

func TestPool_RejectsWorkAfterClose(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, 2)

	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		return nil
	}))
	require.NoError(t, pool.Close(context.Background()))

	err := pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, factory.closed.Load())

	created := factory.created[0]
	assert.Equal(t, int32(1), created.closes.Load(), "idle contexts are closed on shutdown")

	// Closing twice is a no-op
	assert.NoError(t, pool.Close(context.Background()))
}

func TestPool_CloseWaitsForInFlightWork(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, 1)

	hold := make(chan struct{})
	started := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	closed := make(chan error, 1)
	go func() {
		closed <- pool.Close(context.Background())
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while work was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	assert.False(t, factory.closed.Load())

	close(hold)
	require.NoError(t, <-finished)
	require.NoError(t, <-closed)
	assert.True(t, factory.closed.Load())
}

func TestPool_CloseForcesAfterGrace(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, 1)

	hold := make(chan struct{})
	defer close(hold)
	started := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Close(ctx)
	assert.ErrorIs(t, err, ErrShutdownForced)
	assert.True(t, factory.closed.Load(), "browser resources are released even when work is stuck")
}

func TestPool_Stats(t *testing.T) {
	pool := NewPool(&fakeFactory{}, 2)
	defer pool.Close(context.Background())

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), func(ctx context.Context, bc Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	stats := pool.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 1, stats.Busy)
	assert.Equal(t, 0, stats.Waiting)

	close(hold)
	require.Eventually(t, func() bool { return pool.Stats().Busy == 0 }, time.Second, time.Millisecond)
}
