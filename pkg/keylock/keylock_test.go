package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_Exclusive(t *testing.T) {
	table := New()
	ctx := context.Background()

	release, err := table.Lock(ctx, "match")
	require.NoError(t, err)

	_, ok := table.TryLock("match")
	assert.False(t, ok)

	// A different name is unaffected.
	other, ok := table.TryLock("settle_btc")
	require.True(t, ok)
	other()

	release()

	again, ok := table.TryLock("match")
	require.True(t, ok)
	again()
}

func TestLock_FIFOOrder(t *testing.T) {
	table := New()
	ctx := context.Background()

	first, err := table.Lock(ctx, "match")
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	// Start waiters one at a time so their queue positions are known.
	for i := 1; i <= 3; i++ {
		i := i
		started := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			close(started)
			release, err := table.Lock(ctx, "match")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			release()
		}()
		<-started
		time.Sleep(10 * time.Millisecond)
	}

	first()
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestLock_ReleaseIdempotent(t *testing.T) {
	table := New()
	ctx := context.Background()

	release, err := table.Lock(ctx, "settle_bytes")
	require.NoError(t, err)
	release()
	release() // second call must not free somebody else's acquisition

	other, err := table.Lock(ctx, "settle_bytes")
	require.NoError(t, err)

	_, ok := table.TryLock("settle_bytes")
	assert.False(t, ok)
	other()
}

func TestLock_ContextCancelled(t *testing.T) {
	table := New()

	release, err := table.Lock(context.Background(), "match")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := table.Lock(ctx, "match")
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err = <-errCh
	assert.ErrorIs(t, err, context.Canceled)

	release()

	// The cancelled waiter must not have consumed the lock.
	again, ok := table.TryLock("match")
	require.True(t, ok)
	again()
}

func TestBarrier(t *testing.T) {
	table := New()
	ctx := context.Background()

	release, err := table.Lock(ctx, "write")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- table.Barrier(ctx, "write")
	}()

	select {
	case <-done:
		t.Fatal("barrier passed while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	require.NoError(t, <-done)

	// After the barrier the lock is free.
	again, ok := table.TryLock("write")
	require.True(t, ok)
	again()
}
