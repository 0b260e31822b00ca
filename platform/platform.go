package platform

import (
	"context"
	"errors"
	"time"

	"github.com/wippyai/osal/objid"
)

var (
	ErrNotInitialized = errors.New("platform lock not initialized")
	ErrNotLocked      = errors.New("platform lock not held")
	ErrInitialized    = errors.New("platform lock already initialized")
)

// Locker provides one lock and one change notification per object type.
type Locker interface {
	// Init creates the lock for t.
	Init(t objid.Type) error

	// Lock acquires the lock for t.
	Lock(t objid.Type) error

	// Unlock releases the lock for t and wakes every Wait on t.
	Unlock(t objid.Type) error

	// Wait releases the lock for t, blocks until another holder unlocks t,
	// timeout elapses or ctx is done, then re-acquires the lock.
	// Returns ctx.Err() on cancellation and nil otherwise.
	Wait(ctx context.Context, t objid.Type, timeout time.Duration) error

	// Destroy discards the lock for t.
	Destroy(t objid.Type) error
}
