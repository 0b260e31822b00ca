// Package mutsem provides mutex semaphores on top of the object registry.
//
// While a mutex is held, its owner's claim is a long-lived registry
// reference, so the mutex cannot be deleted until it is given back.
package mutsem

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

// Info describes a mutex.
type Info struct {
	ID      objid.ID
	Name    string
	Creator objid.ID
	Owner   objid.ID
}

type mutex struct {
	slot chan struct{}

	mu    sync.Mutex
	held  bool
	owner objid.ID
	claim registry.Token
}

// Manager implements create, delete, take and give for mutexes.
type Manager struct {
	reg    *registry.Registry
	logger *zap.Logger

	mu      sync.Mutex
	mutexes []*mutex
}

// NewManager returns a mutex manager over reg.
func NewManager(reg *registry.Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		reg:     reg,
		logger:  logger,
		mutexes: make([]*mutex, reg.Capacity(objid.TypeMutex)),
	}
}

func (m *Manager) get(idx int) *mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutexes[idx]
}

func (m *Manager) set(idx int, mx *mutex) {
	m.mu.Lock()
	m.mutexes[idx] = mx
	m.mu.Unlock()
}

// Create makes a new, unowned mutex.
func (m *Manager) Create(ctx context.Context, name string) (objid.ID, error) {
	tok, err := m.reg.AllocateNew(ctx, objid.TypeMutex, name)
	if err != nil {
		return objid.Undefined, err
	}
	m.set(tok.Index, &mutex{slot: make(chan struct{}, 1)})
	return m.reg.FinalizeNew(tok, nil)
}

// Delete removes the mutex. It fails with object_in_use while the mutex is
// held or a Take is waiting on it.
func (m *Manager) Delete(ctx context.Context, id objid.ID) error {
	tok, err := m.reg.GetByID(ctx, registry.LockExclusive, objid.TypeMutex, id)
	if err != nil {
		return err
	}
	m.set(tok.Index, nil)
	return m.reg.FinalizeDelete(tok, nil)
}

// Take blocks until the mutex is acquired or ctx is done. The owner is the
// task recorded in ctx.
func (m *Manager) Take(ctx context.Context, id objid.ID) error {
	tok, err := m.reg.GetByID(ctx, registry.LockGlobal, objid.TypeMutex, id)
	if err != nil {
		return err
	}
	defer tok.Release()

	mx := m.get(tok.Index)
	if mx == nil {
		return errors.IncorrectState(errors.PhaseLookup, "mutex has no backing state")
	}

	select {
	case mx.slot <- struct{}{}:
	case <-ctx.Done():
		return errors.Timeout(errors.PhaseLock, ctx.Err())
	}

	claim, err := m.reg.GetByID(ctx, registry.LockRefcount, objid.TypeMutex, id)
	if err != nil {
		<-mx.slot
		return err
	}

	mx.mu.Lock()
	defer mx.mu.Unlock()
	mx.held = true
	mx.owner = registry.TaskFromContext(ctx)
	return registry.TransferToken(claim, &mx.claim)
}

// Give releases a mutex held by the task recorded in ctx.
func (m *Manager) Give(ctx context.Context, id objid.ID) error {
	tok, err := m.reg.GetByID(ctx, registry.LockNone, objid.TypeMutex, id)
	if err != nil {
		return err
	}

	mx := m.get(tok.Index)
	if mx == nil {
		return errors.IncorrectState(errors.PhaseLookup, "mutex has no backing state")
	}

	mx.mu.Lock()
	if !mx.held {
		mx.mu.Unlock()
		return errors.New(errors.PhaseValidate, errors.KindIncorrectObjectState).
			ID(id).
			Detail("mutex is not held").
			Build()
	}
	caller := registry.TaskFromContext(ctx)
	if mx.owner != caller {
		mx.mu.Unlock()
		m.logger.Debug("give by non-owner",
			zap.Stringer("id", id),
			zap.Stringer("owner", mx.owner),
			zap.Stringer("caller", caller))
		return errors.New(errors.PhaseValidate, errors.KindIncorrectObjectState).
			ID(id).
			Detail("mutex owned by %s", mx.owner).
			Build()
	}

	var claim registry.Token
	err = registry.TransferToken(&mx.claim, &claim)
	mx.held = false
	mx.owner = objid.Undefined
	<-mx.slot
	mx.mu.Unlock()

	claim.Release()
	return err
}

// GetIDByName returns the ID of the mutex called name.
func (m *Manager) GetIDByName(ctx context.Context, name string) (objid.ID, error) {
	return m.reg.FindByName(ctx, objid.TypeMutex, name)
}

// Info describes the mutex id.
func (m *Manager) Info(ctx context.Context, id objid.ID) (Info, error) {
	tok, err := m.reg.GetByID(ctx, registry.LockGlobal, objid.TypeMutex, id)
	if err != nil {
		return Info{}, err
	}
	defer tok.Release()

	rec := tok.Record()
	info := Info{ID: id, Name: rec.Name, Creator: rec.Creator}
	if mx := m.get(tok.Index); mx != nil {
		mx.mu.Lock()
		info.Owner = mx.owner
		mx.mu.Unlock()
	}
	return info, nil
}
