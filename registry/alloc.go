package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
)

// AllocateNew reserves a free slot of type t for a new object called name.
//
// The returned token is in LockExclusive mode and must be resolved with
// FinalizeNew. Until then the name counts as taken and lookups of it report
// an incorrect object state. An empty name is allowed and never conflicts.
func (r *Registry) AllocateNew(ctx context.Context, t objid.Type, name string) (*Token, error) {
	if len(name) > r.cfg.MaxNameLen {
		return nil, errors.NameTooLong(name, r.cfg.MaxNameLen)
	}

	if r.State() == StateShuttingDown {
		return nil, errors.IncorrectState(errors.PhaseAllocate, "registry is shutting down")
	}

	tok, err := r.Begin(ctx, LockExclusive, t)
	if err != nil {
		return nil, err
	}

	tbl := r.tables[t]
	if name != "" {
		for i := range tbl.records {
			rec := &tbl.records[i]
			if rec.active != objid.Undefined && rec.name == name {
				tok.end()
				return nil, errors.NameTaken(t, name)
			}
		}
	}

	idx := tbl.findFree()
	if idx < 0 {
		tok.end()
		r.logger.Debug("table full", zap.Stringer("type", t), zap.Int("capacity", len(tbl.records)))
		r.notify(Event{Type: EventTableFull, ObjType: t, Name: name})
		return nil, errors.NoFreeIDs(t, len(tbl.records))
	}

	rec := &tbl.records[idx]
	rec.serial = objid.NextSerial(rec.serial)
	id := objid.Compose(t, idx, rec.serial)

	rec.name = name
	rec.creator = TaskFromContext(ctx)
	rec.refcount = 0
	rec.active = objid.Reserved
	rec.pending = id
	tbl.next = (idx + 1) % len(tbl.records)

	tok.Index = idx
	tok.ID = id
	tok.attached = true
	tok.creating = true
	tok.held = false
	r.unlockType(t)
	return tok, nil
}

// findFree returns the first free slot at or after the cursor, wrapping once.
func (tbl *table) findFree() int {
	n := len(tbl.records)
	for i := 0; i < n; i++ {
		idx := (tbl.next + i) % n
		if tbl.records[idx].active == objid.Undefined {
			return idx
		}
	}
	return -1
}

// FinalizeNew commits or rolls back an allocation. When status is nil the
// object becomes usable and its ID is returned. Otherwise the slot and its
// name are released and status is returned.
func (r *Registry) FinalizeNew(tok *Token, status error) (objid.ID, error) {
	if tok == nil {
		return objid.Undefined, errors.InvalidPointer("token")
	}
	if !tok.creating || tok.Mode != LockExclusive {
		tok.Cancel()
		return objid.Undefined, errors.New(errors.PhaseFinalize, errors.KindIncorrectObjectState).
			ID(tok.ID).
			Detail("token does not hold a new allocation").
			Build()
	}

	id := tok.ID
	t := tok.Type
	if status != nil {
		rec := tok.finish(objid.Undefined, false, true)
		r.notify(Event{Type: EventCreateFailed, ID: id, ObjType: t, Name: rec.Name})
		return objid.Undefined, status
	}

	rec := tok.finish(id, true, false)
	r.notify(Event{Type: EventCreated, ID: id, ObjType: t, Name: rec.Name})
	return id, nil
}

// FinalizeDelete commits or rolls back a deletion started with an exclusive
// lookup. On success the slot is freed; its serial moves on with the next
// allocation. On failure the object stays usable under its old ID. The
// returned error is status.
func (r *Registry) FinalizeDelete(tok *Token, status error) error {
	if tok == nil {
		return errors.InvalidPointer("token")
	}
	if tok.Mode != LockExclusive || !tok.attached {
		tok.Cancel()
		return errors.New(errors.PhaseFinalize, errors.KindIncorrectObjectState).
			ID(tok.ID).
			Detail("token does not hold an exclusive reservation").
			Build()
	}

	id := tok.ID
	t := tok.Type
	if status != nil {
		tok.Release()
		return status
	}

	rec := tok.finish(objid.Undefined, false, true)
	r.notify(Event{Type: EventDeleted, ID: id, ObjType: t, Name: rec.Name})
	return nil
}
