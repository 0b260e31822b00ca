package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

func newRegistry(t *testing.T, capacity int, opts ...registry.Option) *registry.Registry {
	t.Helper()
	r, err := registry.New(config.Uniform(capacity), opts...)
	require.NoError(t, err)
	require.NoError(t, r.Init(context.Background()))
	t.Cleanup(r.Teardown)
	return r
}

func TestMetrics_CountsEvents(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m := New(promReg)
	r := newRegistry(t, 1, registry.WithObserver(m))
	ctx := context.Background()

	tok, err := r.AllocateNew(ctx, objid.TypeMutex, "m")
	require.NoError(t, err)
	_, err = r.FinalizeNew(tok, nil)
	require.NoError(t, err)

	_, err = r.AllocateNew(ctx, objid.TypeMutex, "n")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("mutex", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("mutex", "table_full")))
	// only the two events that happened have a series
	assert.Equal(t, 2, testutil.CollectAndCount(promReg, "osal_registry_events_total"))
}

func TestCollector(t *testing.T) {
	r := newRegistry(t, 3)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		tok, err := r.AllocateNew(ctx, objid.TypeQueue, name)
		require.NoError(t, err)
		_, err = r.FinalizeNew(tok, nil)
		require.NoError(t, err)
	}
	pending, err := r.AllocateNew(ctx, objid.TypeQueue, "c")
	require.NoError(t, err)
	defer pending.Cancel()

	c := NewCollector(r)
	assert.Equal(t, 4*len(objid.Types()), testutil.CollectAndCount(c))

	expected := `
# HELP osal_registry_active_objects Number of usable objects
# TYPE osal_registry_active_objects gauge
osal_registry_active_objects{type="binsem"} 0
osal_registry_active_objects{type="console"} 0
osal_registry_active_objects{type="condvar"} 0
osal_registry_active_objects{type="countsem"} 0
osal_registry_active_objects{type="dir"} 0
osal_registry_active_objects{type="filesys"} 0
osal_registry_active_objects{type="module"} 0
osal_registry_active_objects{type="mutex"} 0
osal_registry_active_objects{type="queue"} 2
osal_registry_active_objects{type="rwlock"} 0
osal_registry_active_objects{type="socket"} 0
osal_registry_active_objects{type="stream"} 0
osal_registry_active_objects{type="task"} 0
osal_registry_active_objects{type="timebase"} 0
osal_registry_active_objects{type="timecb"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "osal_registry_active_objects"))

	s := r.Stats(objid.TypeQueue)
	assert.Equal(t, 1, s.Reserved)
}
