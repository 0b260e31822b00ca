package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
)

// Token is an in-flight transaction against one slot.
//
// A token is owned by the goroutine that obtained it and must end in exactly
// one of Release, FinishWith, Cancel, FinalizeNew or FinalizeDelete. All of
// them are safe to call again; later calls do nothing.
type Token struct {
	r     *Registry
	Type  objid.Type
	Index int
	ID    objid.ID
	Mode  LockMode

	// held: this token owns the table lock for Type.
	held bool
	// attached: the slot carries this token's reference or reservation.
	attached bool
	// creating: the slot was reserved by AllocateNew, so rollback frees it.
	creating bool
}

func (r *Registry) checkState(mode LockMode) error {
	switch State(r.state.Load()) {
	case StateInitialized:
		return nil
	case StateShuttingDown:
		if mode == LockExclusive {
			return nil
		}
		return errors.IncorrectState(errors.PhaseShutdown, "registry is shutting down")
	}
	return errors.IncorrectState(errors.PhaseValidate, "registry not initialized")
}

// Begin starts a transaction of the given mode on type t. For every mode but
// LockNone the table lock is held when Begin returns.
func (r *Registry) Begin(ctx context.Context, mode LockMode, t objid.Type) (*Token, error) {
	if !t.Valid() {
		return nil, errors.New(errors.PhaseValidate, errors.KindInvalidID).
			Detail("invalid object type %s", t).
			Build()
	}
	if mode > LockReserved {
		return nil, errors.New(errors.PhaseValidate, errors.KindError).
			Detail("invalid lock mode %d", mode).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Timeout(errors.PhaseValidate, err)
	}
	if err := r.checkState(mode); err != nil {
		return nil, err
	}

	tok := &Token{r: r, Type: t, Index: -1, Mode: mode}
	if mode != LockNone {
		r.lockType(t)
		tok.held = true
	}
	return tok, nil
}

// Convert checks that tok.ID still occupies slot tok.Index and applies the
// token's mode. On failure the table lock is released and the token is spent.
func (r *Registry) Convert(ctx context.Context, tok *Token) error {
	if tok == nil {
		return errors.InvalidPointer("token")
	}
	if tok.attached {
		return errors.IncorrectState(errors.PhaseConvert, "token already converted")
	}
	if tok.Index < 0 || tok.Index >= r.Capacity(tok.Type) {
		tok.end()
		return errors.InvalidID(errors.PhaseConvert, tok.ID)
	}

	if !tok.held {
		r.lockType(tok.Type)
		tok.held = true
	}

	err := r.convertLocked(ctx, tok)
	if err != nil {
		tok.end()
		if errors.KindOf(err) == errors.KindObjectInUse {
			r.logger.Debug("object in use", zap.Stringer("id", tok.ID))
			r.notify(Event{Type: EventContention, ID: tok.ID, ObjType: tok.Type})
		}
		return err
	}

	switch tok.Mode {
	case LockNone:
		tok.end()
	case LockGlobal, LockRefcount, LockExclusive:
		tok.held = false
		r.unlockType(tok.Type)
	}
	return nil
}

// convertLocked runs with the table lock held and leaves it held.
func (r *Registry) convertLocked(ctx context.Context, tok *Token) error {
	rec := &r.tables[tok.Type].records[tok.Index]

	for attempt := 1; ; attempt++ {
		switch {
		case rec.active == tok.ID && tok.ID.Defined():
			switch tok.Mode {
			case LockNone:
				return nil
			case LockGlobal, LockRefcount:
				rec.refcount++
				tok.attached = true
				return nil
			case LockExclusive:
				if rec.refcount == 0 {
					rec.active = objid.Reserved
					rec.pending = tok.ID
					tok.attached = true
					return nil
				}
			case LockReserved:
				return errors.New(errors.PhaseConvert, errors.KindIncorrectObjectState).
					ID(tok.ID).
					Detail("object is not reserved").
					Build()
			}

		case rec.active == objid.Reserved && rec.pending == tok.ID && tok.ID.Defined():
			switch tok.Mode {
			case LockReserved:
				tok.attached = true
				return nil
			case LockExclusive:
				// another exclusive holder; wait for it to finish
			default:
				return errors.New(errors.PhaseConvert, errors.KindIncorrectObjectState).
					ID(tok.ID).
					Detail("object is being created or deleted").
					Build()
			}

		default:
			return errors.InvalidID(errors.PhaseConvert, tok.ID)
		}

		if attempt >= r.cfg.Lock.MaxAttempts {
			return errors.ObjectInUse(tok.ID, attempt)
		}
		if err := r.waitForChange(ctx, tok.Type, attempt); err != nil {
			return err
		}
	}
}

// end drops whatever lock the token holds without touching the slot.
func (tok *Token) end() {
	if tok.held {
		tok.held = false
		tok.r.unlockType(tok.Type)
	}
	tok.attached = false
	tok.creating = false
	tok.Mode = LockNone
}

// Release ends the transaction, dropping its reference or undoing its
// reservation. A second Release does nothing.
func (tok *Token) Release() {
	tok.finish(objid.Undefined, false, false)
}

// FinishWith ends the transaction, leaving final as the slot's ID when the
// token holds a reservation.
func (tok *Token) FinishWith(final objid.ID) {
	tok.finish(final, true, false)
}

// Cancel rolls back whatever the token holds. It is safe at any stage and
// idempotent, so it can be deferred unconditionally.
func (tok *Token) Cancel() {
	tok.finish(objid.Undefined, false, false)
}

// finish resolves the token and returns the slot as it was before the change.
func (tok *Token) finish(final objid.ID, hasFinal, clear bool) Record {
	if tok == nil || tok.r == nil {
		return Record{}
	}
	if !tok.held && !tok.attached {
		tok.end()
		return Record{}
	}

	r := tok.r
	if !tok.held {
		r.lockType(tok.Type)
		tok.held = true
	}

	var before Record
	if tok.attached {
		rec := &r.tables[tok.Type].records[tok.Index]
		before = rec.snapshot()

		switch tok.Mode {
		case LockGlobal, LockRefcount:
			if rec.refcount > 0 {
				rec.refcount--
			}

		case LockExclusive:
			if rec.active != objid.Reserved || rec.pending != tok.ID {
				r.logger.Warn("reservation lost",
					zap.Stringer("id", tok.ID),
					zap.Stringer("active", rec.active))
				break
			}
			switch {
			case clear, tok.creating && !hasFinal:
				rec.clear()
			case hasFinal:
				rec.active = final
				rec.pending = objid.Undefined
			default:
				rec.active = tok.ID
				rec.pending = objid.Undefined
			}

		case LockReserved:
			if hasFinal {
				rec.active = final
				rec.pending = objid.Undefined
			}
		}
	}

	tok.end()
	return before
}

// Record returns a copy of the token's slot.
func (tok *Token) Record() Record {
	if tok == nil || tok.r == nil || tok.Index < 0 || tok.Index >= tok.r.Capacity(tok.Type) {
		return Record{}
	}
	if !tok.held {
		g := tok.r.lock(tok.Type)
		defer g.release()
	}
	return tok.r.tables[tok.Type].records[tok.Index].snapshot()
}

// Held reports whether the token still owns the table lock.
func (tok *Token) Held() bool {
	return tok != nil && tok.held
}

// TransferToken moves the transaction in from into to, leaving from as a
// spent LockNone token. The table lock and slot state are not touched.
func TransferToken(from, to *Token) error {
	if from == nil || to == nil {
		return errors.InvalidPointer("token")
	}
	if to.held || to.attached {
		return errors.IncorrectState(errors.PhaseValidate, "destination token is in use")
	}

	*to = *from
	*from = Token{
		r:     from.r,
		Type:  from.Type,
		Index: from.Index,
		ID:    from.ID,
		Mode:  LockNone,
	}
	return nil
}
