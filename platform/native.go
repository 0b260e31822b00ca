package platform

import (
	"context"
	"sync"
	"time"

	"github.com/wippyai/osal/objid"
)

// Native implements Locker with Go channels.
//
// The lock is a one-slot semaphore so an unlock without a matching lock is
// reported instead of crashing the process. The change notification is a
// channel that Unlock closes and replaces; it is only touched while the
// lock is held.
type Native struct {
	locks [objid.NumTypes]*typeLock
	mu    sync.RWMutex
}

type typeLock struct {
	sem     chan struct{}
	changed chan struct{}
}

// NewNative creates a Native locker with no types initialized.
func NewNative() *Native {
	return &Native{}
}

func (n *Native) get(t objid.Type) (*typeLock, error) {
	if t >= objid.NumTypes {
		return nil, ErrNotInitialized
	}
	n.mu.RLock()
	l := n.locks[t]
	n.mu.RUnlock()
	if l == nil {
		return nil, ErrNotInitialized
	}
	return l, nil
}

// Init creates the lock for t.
func (n *Native) Init(t objid.Type) error {
	if t >= objid.NumTypes {
		return ErrNotInitialized
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.locks[t] != nil {
		return ErrInitialized
	}
	n.locks[t] = &typeLock{
		sem:     make(chan struct{}, 1),
		changed: make(chan struct{}),
	}
	return nil
}

// Lock acquires the lock for t.
func (n *Native) Lock(t objid.Type) error {
	l, err := n.get(t)
	if err != nil {
		return err
	}
	l.sem <- struct{}{}
	return nil
}

// Unlock wakes all waiters on t and releases the lock.
func (n *Native) Unlock(t objid.Type) error {
	l, err := n.get(t)
	if err != nil {
		return err
	}
	if len(l.sem) == 0 {
		return ErrNotLocked
	}
	close(l.changed)
	l.changed = make(chan struct{})
	<-l.sem
	return nil
}

// Wait releases the lock for t until woken, timed out or cancelled.
// The lock is held again when Wait returns.
func (n *Native) Wait(ctx context.Context, t objid.Type, timeout time.Duration) error {
	l, err := n.get(t)
	if err != nil {
		return err
	}
	if len(l.sem) == 0 {
		return ErrNotLocked
	}

	changed := l.changed
	<-l.sem

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case <-changed:
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	l.sem <- struct{}{}
	return waitErr
}

// Destroy discards the lock for t.
func (n *Native) Destroy(t objid.Type) error {
	if t >= objid.NumTypes {
		return ErrNotInitialized
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.locks[t] == nil {
		return ErrNotInitialized
	}
	n.locks[t] = nil
	return nil
}
