package registry

import (
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
)

func (r *Registry) checkIterState() error {
	switch State(r.state.Load()) {
	case StateInitialized, StateShuttingDown:
		return nil
	}
	return errors.IncorrectState(errors.PhaseIterate, "registry not initialized")
}

// CreatedBy matches live records created by task. objid.Undefined matches all.
func CreatedBy(task objid.ID) MatchFunc {
	return func(_ int, rec Record) bool {
		return task == objid.Undefined || rec.Creator == task
	}
}

// ForEachOfType calls fn for every live object of type t created by creator
// (objid.Undefined for any creator). The set is taken up front; each object
// is checked again just before its call and skipped if it has gone away. fn
// runs without the table lock, so it may delete the object it is given.
// It returns the number of calls made.
func (r *Registry) ForEachOfType(ctx context.Context, t objid.Type, creator objid.ID, fn func(objid.ID)) (int, error) {
	if fn == nil {
		return 0, errors.InvalidPointer("callback")
	}
	if !t.Valid() {
		return 0, errors.New(errors.PhaseIterate, errors.KindInvalidID).
			Detail("invalid object type %s", t).
			Build()
	}
	if err := r.checkIterState(); err != nil {
		return 0, err
	}

	match := CreatedBy(creator)
	var ids []objid.ID
	g := r.lock(t)
	tbl := r.tables[t]
	for i := range tbl.records {
		rec := &tbl.records[i]
		if rec.active.Defined() && match(i, rec.snapshot()) {
			ids = append(ids, rec.active)
		}
	}
	g.release()

	var count int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return count, errors.Timeout(errors.PhaseIterate, err)
		}

		g := r.lock(t)
		live := tbl.records[id.Index()].active == id
		g.release()
		if !live {
			continue
		}

		fn(id)
		count++
	}
	return count, nil
}

// ForEach runs ForEachOfType over every object type in turn.
func (r *Registry) ForEach(ctx context.Context, creator objid.ID, fn func(objid.ID)) (int, error) {
	var total int
	for _, t := range objid.Types() {
		n, err := r.ForEachOfType(ctx, t, creator, fn)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Iterator walks the live objects of one type. It holds the table lock only
// inside Next, so the caller may do anything with the current object,
// including deleting it. An Iterator must not be shared between goroutines.
type Iterator struct {
	r     *Registry
	ctx   context.Context
	t     objid.Type
	match MatchFunc

	pos int
	id  objid.ID
	rec Record
	err error

	destroyed bool
}

// NewIterator returns an iterator over live objects of type t accepted by
// match. A nil match accepts every live object.
func (r *Registry) NewIterator(ctx context.Context, t objid.Type, match MatchFunc) (*Iterator, error) {
	if !t.Valid() {
		return nil, errors.New(errors.PhaseIterate, errors.KindInvalidID).
			Detail("invalid object type %s", t).
			Build()
	}
	if err := r.checkIterState(); err != nil {
		return nil, err
	}
	if match == nil {
		match = CreatedBy(objid.Undefined)
	}
	return &Iterator{r: r, ctx: ctx, t: t, match: match}, nil
}

// Next advances to the next matching object.
func (it *Iterator) Next() bool {
	if it.destroyed || it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = errors.Timeout(errors.PhaseIterate, err)
		return false
	}
	if err := it.r.checkIterState(); err != nil {
		it.err = err
		return false
	}

	g := it.r.lock(it.t)
	defer g.release()

	records := it.r.tables[it.t].records
	for it.pos < len(records) {
		i := it.pos
		it.pos++

		rec := &records[i]
		if !rec.active.Defined() {
			continue
		}
		snap := rec.snapshot()
		if it.match(i, snap) {
			it.id = rec.active
			it.rec = snap
			return true
		}
	}

	it.id = objid.Undefined
	it.rec = Record{}
	return false
}

// ID returns the current object's ID.
func (it *Iterator) ID() objid.ID { return it.id }

// Record returns the current object's record as seen by Next.
func (it *Iterator) Record() Record { return it.rec }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Reset restarts the iteration from the first slot.
func (it *Iterator) Reset() {
	if it.destroyed {
		return
	}
	it.pos = 0
	it.id = objid.Undefined
	it.rec = Record{}
	it.err = nil
}

// Destroy ends the iteration. Calling it again does nothing.
func (it *Iterator) Destroy() {
	it.destroyed = true
	it.id = objid.Undefined
	it.rec = Record{}
}

// Objects returns a sequence of the live objects of type t created by
// creator. Each range over the sequence starts a fresh iteration.
// The sequence has no error channel: a registry that is not running or a
// cancelled ctx ends it early, and the cause is logged at debug. Use
// NewIterator and Err when the difference from an empty table matters.
func (r *Registry) Objects(ctx context.Context, t objid.Type, creator objid.ID) iter.Seq[objid.ID] {
	return func(yield func(objid.ID) bool) {
		it, err := r.NewIterator(ctx, t, CreatedBy(creator))
		if err != nil {
			r.logger.Debug("objects not iterated", zap.Stringer("type", t), zap.Error(err))
			return
		}
		defer it.Destroy()

		for it.Next() {
			if !yield(it.ID()) {
				return
			}
		}
		if err := it.Err(); err != nil {
			r.logger.Debug("objects iteration stopped", zap.Stringer("type", t), zap.Error(err))
		}
	}
}
