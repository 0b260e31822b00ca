package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	for _, typ := range objid.Types() {
		assert.Equal(t, DefaultCapacity, cfg.Registry.Capacity(typ), typ.String())
	}
	assert.Equal(t, DefaultMaxAttempts, cfg.Registry.Lock.MaxAttempts)
	assert.NoError(t, cfg.Registry.Validate())
}

func TestCapacityInvalidType(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, 0, r.Capacity(objid.TypeUndefined))
	r.SetCapacity(objid.NumTypes, 3)
	assert.Equal(t, 0, r.Capacity(objid.NumTypes))
}

func TestValidate(t *testing.T) {
	r := Uniform(5)
	require.NoError(t, r.Validate())

	r.SetCapacity(objid.TypeMutex, 0)
	assert.ErrorIs(t, r.Validate(), errors.ErrInvalidSize)

	r = Uniform(objid.MaxCapacity + 1)
	assert.ErrorIs(t, r.Validate(), errors.ErrInvalidSize)

	r = Uniform(4)
	r.Lock.MaxBackoff = r.Lock.BaseBackoff / 2
	assert.ErrorIs(t, r.Validate(), errors.ErrInvalidSize)
}

func TestFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osal.toml")
	data := `
[registry]
max-tasks = 8
max-mutexes = 3
max-name-len = 32

[registry.lock]
max-attempts = 6
base-backoff = "5ms"

[log]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := FromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Registry.Capacity(objid.TypeTask))
	assert.Equal(t, 3, cfg.Registry.Capacity(objid.TypeMutex))
	assert.Equal(t, DefaultCapacity, cfg.Registry.Capacity(objid.TypeQueue))
	assert.Equal(t, 32, cfg.Registry.MaxNameLen)
	assert.Equal(t, 6, cfg.Registry.Lock.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.Registry.Lock.BaseBackoff)
	assert.Equal(t, DefaultMaxBackoff, cfg.Registry.Lock.MaxBackoff)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestFromPathRejectsOtherFormats(t *testing.T) {
	_, err := FromPath("osal.yaml")
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osal.toml")
	require.NoError(t, os.WriteFile(path, []byte("[registry]\nmax-queues = 9\n"), 0o644))

	t.Setenv("OSAL_MAX_QUEUES", "12")
	t.Setenv("OSAL_LOCK_MAX_ATTEMPTS", "2")
	t.Setenv("OSAL_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Registry.Capacity(objid.TypeQueue))
	assert.Equal(t, 2, cfg.Registry.Lock.MaxAttempts)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, DefaultCapacity, cfg.Registry.Capacity(objid.TypeTask))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, cfg.Registry.Capacity(objid.TypeTask))
}

func TestLoad_InvalidEnvCapacity(t *testing.T) {
	t.Setenv("OSAL_MAX_SOCKETS", "0")
	_, err := Load("")
	assert.ErrorIs(t, err, errors.ErrInvalidSize)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.toml")
	cfg := Default()
	cfg.Registry.SetCapacity(objid.TypeModule, 7)
	cfg.Registry.Lock.BaseBackoff = 20 * time.Millisecond
	require.NoError(t, cfg.Save(path))

	loaded, err := FromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Registry.Capacity(objid.TypeModule))
	assert.Equal(t, 20*time.Millisecond, loaded.Registry.Lock.BaseBackoff)
}
