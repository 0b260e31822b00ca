package mutsem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

func newManager(t *testing.T, capacity int) (*Manager, *registry.Registry) {
	t.Helper()
	cfg := config.Uniform(capacity)
	cfg.Lock.BaseBackoff = time.Millisecond
	cfg.Lock.MaxBackoff = 10 * time.Millisecond

	reg, err := registry.New(cfg)
	require.NoError(t, err)
	require.NoError(t, reg.Init(context.Background()))
	t.Cleanup(reg.Teardown)
	return NewManager(reg, nil), reg
}

// asTask returns a context attributed to a freshly registered task.
func asTask(t *testing.T, reg *registry.Registry, name string) context.Context {
	t.Helper()
	tok, err := reg.AllocateNew(context.Background(), objid.TypeTask, name)
	require.NoError(t, err)
	id, err := reg.FinalizeNew(tok, nil)
	require.NoError(t, err)
	return registry.WithTask(context.Background(), id)
}

func TestTakeGive(t *testing.T) {
	m, reg := newManager(t, 4)
	owner := asTask(t, reg, "owner")

	id, err := m.Create(owner, "lock")
	require.NoError(t, err)

	require.NoError(t, m.Take(owner, id))

	info, err := m.Info(owner, id)
	require.NoError(t, err)
	assert.Equal(t, "lock", info.Name)
	assert.Equal(t, registry.TaskFromContext(owner), info.Owner)
	assert.Equal(t, registry.TaskFromContext(owner), info.Creator)

	// the owner's claim is a registry reference
	assert.Equal(t, uint32(1), reg.Stats(objid.TypeMutex).Refs)

	require.NoError(t, m.Give(owner, id))
	assert.Equal(t, uint32(0), reg.Stats(objid.TypeMutex).Refs)

	err = m.Give(owner, id)
	assert.ErrorIs(t, err, errors.ErrIncorrectObjectState)
}

func TestGive_NotOwner(t *testing.T) {
	m, reg := newManager(t, 4)
	owner := asTask(t, reg, "owner")
	other := asTask(t, reg, "other")

	id, err := m.Create(owner, "lock")
	require.NoError(t, err)
	require.NoError(t, m.Take(owner, id))

	err = m.Give(other, id)
	assert.ErrorIs(t, err, errors.ErrIncorrectObjectState)
	assert.Equal(t, -35, int(errors.Status(err)))

	require.NoError(t, m.Give(owner, id))
}

func TestDelete_WhileHeld(t *testing.T) {
	m, reg := newManager(t, 4)
	owner := asTask(t, reg, "owner")

	id, err := m.Create(owner, "busy")
	require.NoError(t, err)
	require.NoError(t, m.Take(owner, id))

	err = m.Delete(context.Background(), id)
	assert.ErrorIs(t, err, errors.ErrObjectInUse)

	// failed delete left it intact
	found, err := m.GetIDByName(context.Background(), "busy")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	require.NoError(t, m.Give(owner, id))
	require.NoError(t, m.Delete(context.Background(), id))

	_, err = m.GetIDByName(context.Background(), "busy")
	assert.ErrorIs(t, err, errors.ErrNameNotFound)
	assert.ErrorIs(t, m.Take(owner, id), errors.ErrInvalidID)
}

func TestTake_Timeout(t *testing.T) {
	m, reg := newManager(t, 4)
	a := asTask(t, reg, "a")
	b := asTask(t, reg, "b")

	id, err := m.Create(a, "lock")
	require.NoError(t, err)
	require.NoError(t, m.Take(a, id))

	ctx, cancel := context.WithTimeout(b, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Take(ctx, id), errors.ErrTimeout)

	// the abandoned wait left no reference behind
	assert.Equal(t, uint32(1), reg.Stats(objid.TypeMutex).Refs)
	require.NoError(t, m.Give(a, id))
}

func TestTake_MutualExclusion(t *testing.T) {
	m, reg := newManager(t, 16)
	id, err := m.Create(context.Background(), "shared")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		guard   sync.Mutex
	)
	for i := 0; i < 8; i++ {
		ctx := asTask(t, reg, string(rune('a'+i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := m.Take(ctx, id); err != nil {
					t.Errorf("Take failed: %v", err)
					return
				}
				guard.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				guard.Unlock()

				guard.Lock()
				inside--
				guard.Unlock()

				if err := m.Give(ctx, id); err != nil {
					t.Errorf("Give failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	s := reg.Stats(objid.TypeMutex)
	assert.Equal(t, uint32(0), s.Refs)
	assert.Equal(t, 1, s.Active)
}
