package registry

import (
	"context"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
)

// GetByID opens a transaction of the given mode on the object id of type t.
func (r *Registry) GetByID(ctx context.Context, mode LockMode, t objid.Type, id objid.ID) (*Token, error) {
	idx, err := r.ToIndex(t, id)
	if err != nil {
		return nil, err
	}

	tok, err := r.Begin(ctx, mode, t)
	if err != nil {
		return nil, err
	}
	tok.Index = idx
	tok.ID = id

	if err := r.Convert(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// GetByName opens a transaction on the object of type t called name.
// Objects still being created match, and fail conversion for every mode
// but LockReserved.
func (r *Registry) GetByName(ctx context.Context, mode LockMode, t objid.Type, name string) (*Token, error) {
	if name == "" {
		return nil, errors.NameNotFound(t, name)
	}
	if len(name) > r.cfg.MaxNameLen {
		return nil, errors.NameTooLong(name, r.cfg.MaxNameLen)
	}

	tok, err := r.search(ctx, mode, t, func(_ int, rec Record) bool {
		return rec.Name == name
	})
	if err != nil {
		if errors.KindOf(err) == errors.KindNameNotFound {
			return nil, errors.NameNotFound(t, name)
		}
		return nil, err
	}
	return tok, nil
}

// GetBySearch opens a transaction on the first object of type t accepted by
// match. Free slots are never offered to match.
func (r *Registry) GetBySearch(ctx context.Context, mode LockMode, t objid.Type, match MatchFunc) (*Token, error) {
	if match == nil {
		return nil, errors.InvalidPointer("match")
	}
	return r.search(ctx, mode, t, match)
}

func (r *Registry) search(ctx context.Context, mode LockMode, t objid.Type, match MatchFunc) (*Token, error) {
	tok, err := r.Begin(ctx, mode, t)
	if err != nil {
		return nil, err
	}
	if !tok.held {
		r.lockType(t)
		tok.held = true
	}

	tbl := r.tables[t]
	for i := range tbl.records {
		rec := &tbl.records[i]
		if rec.active == objid.Undefined {
			continue
		}
		if match(i, rec.snapshot()) {
			tok.Index = i
			tok.ID = rec.id()
			break
		}
	}

	if tok.Index < 0 {
		tok.end()
		return nil, errors.New(errors.PhaseLookup, errors.KindNameNotFound).
			Detail("no matching %s", t).
			Build()
	}

	if err := r.Convert(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// FindByName returns the ID of the live object of type t called name.
func (r *Registry) FindByName(ctx context.Context, t objid.Type, name string) (objid.ID, error) {
	tok, err := r.GetByName(ctx, LockNone, t, name)
	if err != nil {
		return objid.Undefined, err
	}
	return tok.ID, nil
}

// ToIndex returns the table index encoded in id after checking that id
// belongs to type t and fits its table. It does not check that id is live.
func (r *Registry) ToIndex(t objid.Type, id objid.ID) (int, error) {
	if !t.Valid() || !id.Defined() || id.Type() != t {
		return 0, errors.InvalidID(errors.PhaseLookup, id)
	}
	idx := id.Index()
	if idx >= r.Capacity(t) {
		return 0, errors.InvalidID(errors.PhaseLookup, id)
	}
	return idx, nil
}
