// Package task runs goroutine-backed tasks registered in the object registry.
//
// A task's body starts only after its registry entry is finalized, runs with
// its own ID in the context (registry.TaskFromContext) and deletes its entry
// when it returns. Bodies run on a bounded ants pool sized to the task table.
package task

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

// Func is a task body. It should return once ctx is done.
type Func func(ctx context.Context)

// Info describes a live task.
type Info struct {
	ID       objid.ID
	Name     string
	Creator  objid.ID
	SystemID uint64
}

type entry struct {
	sysID    uint64
	cancel   context.CancelFunc
	done     chan struct{}
	deleting atomic.Bool
}

// Manager creates and deletes tasks.
type Manager struct {
	reg    *registry.Registry
	pool   *ants.Pool
	logger *zap.Logger

	sysIDs atomic.Uint64

	mu      sync.Mutex
	entries []*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

type antLogger struct {
	lg *zap.SugaredLogger
}

func (l *antLogger) Printf(format string, args ...any) {
	l.lg.Debugf(format, args...)
}

// NewManager returns a task manager over reg with one pool worker per task slot.
func NewManager(reg *registry.Registry, opts ...Option) (*Manager, error) {
	if reg == nil {
		return nil, errors.InvalidPointer("registry")
	}
	m := &Manager{
		reg:     reg,
		logger:  zap.NewNop(),
		entries: make([]*entry, reg.Capacity(objid.TypeTask)),
	}
	for _, opt := range opts {
		opt(m)
	}

	pool, err := ants.NewPool(len(m.entries),
		ants.WithLogger(&antLogger{lg: m.logger.Sugar()}))
	if err != nil {
		return nil, errors.Wrap(errors.PhasePlatform, errors.KindError, err, "create task pool")
	}
	m.pool = pool
	return m, nil
}

func (m *Manager) entry(idx int) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[idx]
}

func (m *Manager) setEntry(idx int, e *entry) {
	m.mu.Lock()
	m.entries[idx] = e
	m.mu.Unlock()
}

// Create registers a task called name and starts fn on the pool.
func (m *Manager) Create(ctx context.Context, name string, fn Func) (objid.ID, error) {
	if fn == nil {
		return objid.Undefined, errors.InvalidPointer("task function")
	}

	tok, err := m.reg.AllocateNew(ctx, objid.TypeTask, name)
	if err != nil {
		return objid.Undefined, err
	}

	id := tok.ID
	idx := tok.Index
	taskCtx, cancel := context.WithCancel(registry.WithTask(context.WithoutCancel(ctx), id))
	e := &entry{
		sysID:  m.sysIDs.Inc(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	started := make(chan struct{})

	err = m.pool.Submit(func() {
		defer close(e.done)
		select {
		case <-started:
		case <-taskCtx.Done():
			return
		}
		fn(taskCtx)
		m.exit(id, idx, e)
	})
	if err != nil {
		cancel()
		return m.reg.FinalizeNew(tok, errors.Wrap(errors.PhasePlatform, errors.KindError, err, "start task"))
	}

	m.setEntry(idx, e)
	if _, err := m.reg.FinalizeNew(tok, nil); err != nil {
		m.setEntry(idx, nil)
		cancel()
		return objid.Undefined, err
	}
	close(started)

	m.logger.Debug("task created",
		zap.Stringer("id", id),
		zap.String("name", name),
		zap.Uint64("sysid", e.sysID))
	return id, nil
}

// exit removes a task whose body returned on its own.
func (m *Manager) exit(id objid.ID, idx int, e *entry) {
	if !e.deleting.CompareAndSwap(false, true) {
		return
	}
	e.cancel()

	ctx := context.Background()
	for {
		tok, err := m.reg.GetByID(ctx, registry.LockExclusive, objid.TypeTask, id)
		if err == nil {
			m.setEntry(idx, nil)
			_ = m.reg.FinalizeDelete(tok, nil)
			m.logger.Debug("task exited", zap.Stringer("id", id))
			return
		}
		if errors.KindOf(err) != errors.KindObjectInUse {
			m.logger.Debug("task exit without delete", zap.Stringer("id", id), zap.Error(err))
			return
		}
		// still referenced; keep trying unless a Delete has reserved the slot
		if _, err := m.reg.GetByID(ctx, registry.LockNone, objid.TypeTask, id); err != nil {
			m.logger.Debug("task exit left to deleter", zap.Stringer("id", id), zap.Error(err))
			return
		}
	}
}

// Delete cancels the task and waits for its body to return, bounded by ctx.
// A task may delete itself; it is then not waited for.
func (m *Manager) Delete(ctx context.Context, id objid.ID) error {
	tok, err := m.reg.GetByID(ctx, registry.LockExclusive, objid.TypeTask, id)
	if err != nil {
		return err
	}

	e := m.entry(tok.Index)
	if e != nil {
		e.deleting.Store(true)
		e.cancel()

		if registry.TaskFromContext(ctx) != id {
			select {
			case <-e.done:
			case <-ctx.Done():
				e.deleting.Store(false)
				return m.reg.FinalizeDelete(tok, errors.Timeout(errors.PhaseFinalize, ctx.Err()))
			}
		}
	}

	m.setEntry(tok.Index, nil)
	return m.reg.FinalizeDelete(tok, nil)
}

// GetIDByName returns the ID of the task called name.
func (m *Manager) GetIDByName(ctx context.Context, name string) (objid.ID, error) {
	return m.reg.FindByName(ctx, objid.TypeTask, name)
}

// IDBySystemID returns the ID of the task with the given system ID.
func (m *Manager) IDBySystemID(ctx context.Context, sysID uint64) (objid.ID, error) {
	tok, err := m.reg.GetBySearch(ctx, registry.LockNone, objid.TypeTask, func(index int, _ registry.Record) bool {
		e := m.entry(index)
		return e != nil && e.sysID == sysID
	})
	if err != nil {
		return objid.Undefined, err
	}
	return tok.ID, nil
}

// Info returns a description of the task id.
func (m *Manager) Info(ctx context.Context, id objid.ID) (Info, error) {
	tok, err := m.reg.GetByID(ctx, registry.LockGlobal, objid.TypeTask, id)
	if err != nil {
		return Info{}, err
	}
	defer tok.Release()

	rec := tok.Record()
	info := Info{ID: id, Name: rec.Name, Creator: rec.Creator}
	if e := m.entry(tok.Index); e != nil {
		info.SystemID = e.sysID
	}
	return info, nil
}

// Self returns the calling task's ID, or invalid_id outside a task.
func (m *Manager) Self(ctx context.Context) (objid.ID, error) {
	id := registry.TaskFromContext(ctx)
	if _, err := m.reg.GetByID(ctx, registry.LockNone, objid.TypeTask, id); err != nil {
		return objid.Undefined, err
	}
	return id, nil
}

// Close deletes every remaining task and releases the pool.
func (m *Manager) Close(ctx context.Context) error {
	var firstErr error
	_, err := m.reg.ForEachOfType(ctx, objid.TypeTask, objid.Undefined, func(id objid.ID) {
		if err := m.Delete(ctx, id); err != nil && firstErr == nil {
			if errors.KindOf(err) != errors.KindInvalidID {
				firstErr = err
			}
		}
	})
	m.pool.Release()
	if err != nil {
		return err
	}
	return firstErr
}
