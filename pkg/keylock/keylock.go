// Package keylock provides a table of named advisory locks with FIFO wait
// queues. Operations holding the same lock name execute strictly in
// acquisition order; operations on disjoint names interleave freely.
package keylock

import (
	"context"
	"sync"
)

// ReleaseFunc releases a held lock. It is idempotent; calling it more than
// once is a no-op.
type ReleaseFunc func()

type lockState struct {
	held    bool
	waiters []chan struct{}
}

// Table is a keyed async-lock table (lock name -> FIFO wait queue).
type Table struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

// New creates an empty lock table.
func New() *Table {
	return &Table{
		locks: make(map[string]*lockState),
	}
}

// Lock acquires the named lock, waiting in FIFO order behind current
// holders. The returned ReleaseFunc must be called on every exit path.
func (t *Table) Lock(ctx context.Context, name string) (ReleaseFunc, error) {
	t.mu.Lock()
	st := t.locks[name]
	if st == nil {
		st = &lockState{}
		t.locks[name] = st
	}
	if !st.held {
		st.held = true
		t.mu.Unlock()
		return t.releaseFunc(name), nil
	}

	grant := make(chan struct{})
	st.waiters = append(st.waiters, grant)
	t.mu.Unlock()

	select {
	case <-grant:
		return t.releaseFunc(name), nil
	case <-ctx.Done():
		t.mu.Lock()
		for i, w := range st.waiters {
			if w == grant {
				st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
				t.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		// The grant raced with cancellation; the lock is ours, release it.
		t.mu.Unlock()
		t.release(name)
		return nil, ctx.Err()
	}
}

// TryLock acquires the named lock only if it is free. It reports whether the
// lock was acquired.
func (t *Table) TryLock(name string) (ReleaseFunc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.locks[name]
	if st == nil {
		st = &lockState{}
		t.locks[name] = st
	}
	if st.held {
		return nil, false
	}
	st.held = true
	return t.releaseFunc(name), true
}

// Barrier acquires and immediately releases the named lock. It is a
// happens-before fence against an in-flight holder, not mutual exclusion.
func (t *Table) Barrier(ctx context.Context, name string) error {
	release, err := t.Lock(ctx, name)
	if err != nil {
		return err
	}
	release()
	return nil
}

func (t *Table) releaseFunc(name string) ReleaseFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			t.release(name)
		})
	}
}

func (t *Table) release(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.locks[name]
	if st == nil || !st.held {
		return
	}
	if len(st.waiters) == 0 {
		st.held = false
		delete(t.locks, name)
		return
	}
	// Hand the lock to the oldest waiter without ever marking it free, so
	// acquisition order is strictly FIFO.
	next := st.waiters[0]
	st.waiters = st.waiters[1:]
	close(next)
}
