// Package platform defines the native locking primitives the registry is
// built on, and provides a hosted implementation.
//
// A port supplies one exclusive lock and one change notification per object
// type. The registry assumes the lock is non-recursive and never takes two
// type locks at once.
//
//	Init(t)                  create the lock for type t
//	Lock(t) / Unlock(t)      acquire / release; Unlock also wakes all waiters
//	Wait(ctx, t, timeout)    release, block until woken or timed out, re-acquire
//	Destroy(t)               discard the lock
//
// Wait always returns with the lock held, including when ctx is cancelled, so
// a caller's deferred unlock stays correct on every exit path.
package platform
