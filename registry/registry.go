package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/platform"
)

const shutdownPasses = 5

// Registry owns one fixed-size table per object type.
type Registry struct {
	tables    [objid.NumTypes]*table
	cfg       config.Registry
	locker    platform.Locker
	logger    *zap.Logger
	state     atomic.Int32
	observers []Observer
	obsMu     sync.RWMutex
}

type table struct {
	records []record
	// next is where the free-slot scan starts, so slots are reused round-robin.
	next int
}

type record struct {
	name     string
	creator  objid.ID
	refcount uint32
	active   objid.ID
	// pending holds the slot's ID while active is objid.Reserved.
	pending objid.ID
	// serial is the last serial issued for this slot; it survives clear.
	serial uint32
}

func (rec *record) snapshot() Record {
	return Record{
		Name:     rec.name,
		Creator:  rec.creator,
		Refcount: rec.refcount,
		ActiveID: rec.active,
	}
}

// id returns the ID the slot belongs to, looking through a reservation.
func (rec *record) id() objid.ID {
	if rec.active == objid.Reserved {
		return rec.pending
	}
	return rec.active
}

func (rec *record) clear() {
	*rec = record{serial: rec.serial}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for lock anomalies and diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLocker replaces the native platform locks.
func WithLocker(l platform.Locker) Option {
	return func(r *Registry) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithObserver subscribes o before the registry is initialized.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// New allocates the tables described by cfg. Call Init before use.
func New(cfg config.Registry, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		cfg:    cfg,
		locker: platform.NewNative(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, t := range objid.Types() {
		r.tables[t] = &table{records: make([]record, cfg.Capacity(t))}
	}
	return r, nil
}

// Init creates the platform locks and opens the registry for use.
func (r *Registry) Init(ctx context.Context) error {
	if State(r.state.Load()) != StateUninitialized {
		return errors.IncorrectState(errors.PhaseValidate, "registry already initialized")
	}

	for _, t := range objid.Types() {
		if err := r.locker.Init(t); err != nil {
			for _, prev := range objid.Types() {
				if prev == t {
					break
				}
				_ = r.locker.Destroy(prev)
			}
			return errors.New(errors.PhasePlatform, errors.KindError).
				Detail("init %s lock", t).
				Cause(err).
				Build()
		}
	}

	if !r.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitialized)) {
		return errors.IncorrectState(errors.PhaseValidate, "registry already initialized")
	}
	r.logger.Debug("registry initialized", zap.Int("types", len(objid.Types())))
	return nil
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// Capacity returns the table size for t, or 0 for an invalid type.
func (r *Registry) Capacity(t objid.Type) int {
	if !t.Valid() {
		return 0
	}
	return len(r.tables[t].records)
}

// MaxNameLen returns the configured name length limit.
func (r *Registry) MaxNameLen() int {
	return r.cfg.MaxNameLen
}

// Shutdown stops new non-exclusive transactions and calls deleter for every
// remaining object, for up to a few passes. Objects that survive every pass
// are reported as in use.
func (r *Registry) Shutdown(ctx context.Context, deleter func(context.Context, objid.ID) error) error {
	if deleter == nil {
		return errors.InvalidPointer("deleter")
	}
	if !r.state.CompareAndSwap(int32(StateInitialized), int32(StateShuttingDown)) {
		return errors.IncorrectState(errors.PhaseShutdown, "registry not running")
	}

	for pass := 1; pass <= shutdownPasses; pass++ {
		if _, err := r.ForEach(ctx, objid.Undefined, func(id objid.ID) {
			if err := deleter(ctx, id); err != nil {
				r.logger.Debug("shutdown delete failed",
					zap.Stringer("id", id),
					zap.Int("pass", pass),
					zap.Error(err))
			}
		}); err != nil {
			return err
		}
		// reserved slots count too: a creation or deletion is still in flight
		if r.remaining() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Timeout(errors.PhaseShutdown, ctx.Err())
		case <-time.After(time.Duration(pass) * 10 * time.Millisecond):
		}
	}

	return errors.New(errors.PhaseShutdown, errors.KindObjectInUse).
		Detail("%d objects remain after %d passes", r.remaining(), shutdownPasses).
		Build()
}

// remaining counts active and reserved slots across every table.
func (r *Registry) remaining() int {
	var n int
	for _, t := range objid.Types() {
		s := r.Stats(t)
		n += s.Active + s.Reserved
	}
	return n
}

// Teardown destroys the platform locks, clears every table and returns the
// registry to the uninitialized state. No other call may be in progress.
func (r *Registry) Teardown() {
	r.state.Store(int32(StateUninitialized))
	for _, t := range objid.Types() {
		tbl := r.tables[t]
		for i := range tbl.records {
			tbl.records[i].clear()
		}
		tbl.next = 0
		if err := r.locker.Destroy(t); err != nil {
			r.logger.Warn("destroy lock", zap.Stringer("type", t), zap.Error(err))
		}
	}
}

// Stats summarizes the table for t.
func (r *Registry) Stats(t objid.Type) TypeStats {
	s := TypeStats{Type: t}
	if !t.Valid() {
		return s
	}

	g := r.lock(t)
	defer g.release()

	tbl := r.tables[t]
	s.Capacity = len(tbl.records)
	for i := range tbl.records {
		rec := &tbl.records[i]
		switch {
		case rec.active == objid.Reserved:
			s.Reserved++
		case rec.active != objid.Undefined:
			s.Active++
		}
		s.Refs += rec.refcount
	}
	return s
}

// Slots returns a copy of every slot of t, free ones included.
func (r *Registry) Slots(t objid.Type) []Slot {
	if !t.Valid() {
		return nil
	}

	g := r.lock(t)
	defer g.release()

	tbl := r.tables[t]
	out := make([]Slot, len(tbl.records))
	for i := range tbl.records {
		out[i] = Slot{
			Record: tbl.records[i].snapshot(),
			Index:  i,
			Serial: tbl.records[i].serial,
		}
	}
	return out
}

// Subscribe adds an observer for registry events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnRegistryEvent(e)
	}
}
