package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
)

// backoffRampAttempts is the last attempt on the quadratic part of the curve.
const backoffRampAttempts = 10

// lockType acquires the table lock for t. Platform failures are logged and
// the caller proceeds as if the lock were held.
func (r *Registry) lockType(t objid.Type) {
	if err := r.locker.Lock(t); err != nil {
		r.logger.Warn("table lock failed", zap.Stringer("type", t), zap.Error(err))
	}
}

// unlockType releases the table lock for t and wakes waiters on t.
func (r *Registry) unlockType(t objid.Type) {
	if err := r.locker.Unlock(t); err != nil {
		r.logger.Warn("table unlock failed", zap.Stringer("type", t), zap.Error(err))
	}
}

// guard releases a table lock at most once.
type guard struct {
	r    *Registry
	t    objid.Type
	held bool
}

func (r *Registry) lock(t objid.Type) guard {
	r.lockType(t)
	return guard{r: r, t: t, held: true}
}

func (g *guard) release() {
	if g.held {
		g.held = false
		g.r.unlockType(g.t)
	}
}

// backoff returns the wait before retry number attempt (1-based).
func (r *Registry) backoff(attempt int) time.Duration {
	lc := r.cfg.Lock
	if attempt < 1 {
		attempt = 1
	}
	if attempt > backoffRampAttempts {
		return lc.MaxBackoff
	}
	d := time.Duration(attempt*attempt) * lc.BaseBackoff
	if d > lc.MaxBackoff {
		d = lc.MaxBackoff
	}
	return d
}

// waitForChange blocks until the table for t changes or the backoff for
// attempt elapses. The caller holds the table lock, and holds it again on
// return whether or not ctx was cancelled.
func (r *Registry) waitForChange(ctx context.Context, t objid.Type, attempt int) error {
	err := r.locker.Wait(ctx, t, r.backoff(attempt))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errors.Timeout(errors.PhaseLock, ctx.Err())
	}
	r.logger.Warn("wait for change failed",
		zap.Stringer("type", t),
		zap.Int("attempt", attempt),
		zap.Error(err))
	return nil
}
