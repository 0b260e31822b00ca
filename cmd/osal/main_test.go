package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

// runWasm exports one function, "run", with no params or results.
var runWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

const testConfig = `
[registry]
max-tasks = 4
max-mutexes = 16

[registry.lock]
base-backoff = "1ms"
max-backoff = "5ms"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "osal.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestDemo(t *testing.T) {
	out, err := execute(t, "demo")
	require.NoError(t, err)

	assert.Contains(t, out, "created  queue-0")
	assert.Contains(t, out, "overflow status=-14")
	assert.Contains(t, out, "deleted")
	assert.Contains(t, out, "created  fresh")
	assert.Contains(t, out, "queue: 5/5 active")
}

func TestDemo_UnknownType(t *testing.T) {
	_, err := execute(t, "demo", "--type", "widget")
	assert.ErrorContains(t, err, "unknown object type")
}

func TestModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.wasm")
	require.NoError(t, os.WriteFile(path, runWasm, 0o644))

	out, err := execute(t, "module", path, "--call", "run")
	require.NoError(t, err)
	assert.Contains(t, out, " run\n")
	assert.Contains(t, out, "  run(0) -> 0")
	assert.Contains(t, out, "run -> []")
}

func TestModule_MissingSymbol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.wasm")
	require.NoError(t, os.WriteFile(path, runWasm, 0o644))

	_, err := execute(t, "module", path, "--call", "absent")
	assert.Error(t, err)
}

func TestStress(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "stress", "--workers", "3", "--ops", "20")
	require.NoError(t, err)

	assert.Contains(t, out, "status    0")
	// shutdown removed everything
	assert.Contains(t, out, "task: 0 active, 0 reserved, 0 refs of 4")
	assert.Contains(t, out, "mutex: 0 active, 0 reserved, 0 refs of 16")
}

func TestStress_TooManyWorkers(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "stress", "--workers", "5", "--ops", "1")
	assert.ErrorContains(t, err, "do not fit")
}

func TestStress_Flags(t *testing.T) {
	_, err := execute(t, "stress", "--workers", "0")
	assert.Error(t, err)

	_, err = execute(t, "stress", "--ops", "0")
	assert.ErrorContains(t, err, "--duration")
}

func newTopRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	a := &app{cfg: config.Default(), logger: zaptest.NewLogger(t)}
	reg, err := a.newRegistry(context.Background(), config.Uniform(4))
	require.NoError(t, err)
	t.Cleanup(reg.Teardown)
	return reg
}

func rowFor(m *topModel, t objid.Type) []string {
	for _, row := range m.table.Rows() {
		if row[0] == t.String() {
			return row
		}
	}
	return nil
}

func TestTopModel_Refresh(t *testing.T) {
	reg := newTopRegistry(t)
	m := newTopModel(reg, nil, time.Second, 0)

	row := rowFor(m, objid.TypeQueue)
	require.NotNil(t, row)
	assert.Equal(t, []string{"queue", "4", "0", "0", "0", "0%"}, row)

	for _, name := range []string{"a", "b", "c", "d"} {
		tok, err := reg.AllocateNew(context.Background(), objid.TypeQueue, name)
		require.NoError(t, err)
		_, err = reg.FinalizeNew(tok, nil)
		require.NoError(t, err)
	}

	_, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd, "tick reschedules itself")

	row = rowFor(m, objid.TypeQueue)
	assert.Equal(t, []string{"queue", "4", "4", "0", "0", "100%"}, row)
	assert.Contains(t, m.View(), "full: queue")
	assert.Contains(t, m.View(), "initialized")
}

func TestTopModel_Quit(t *testing.T) {
	m := newTopModel(newTopRegistry(t), nil, time.Second, 0)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
}

func TestTopModel_Resize(t *testing.T) {
	m := newTopModel(newTopRegistry(t), nil, time.Second, 0)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, m.width)
	assert.Equal(t, 120-5*10-12, m.table.Columns()[0].Width)
}
