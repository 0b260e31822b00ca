// Package module loads WebAssembly modules as registry objects.
//
// Each loaded module is compiled and instantiated once on a shared wazero
// runtime. Its exported functions are the module's symbols.
package module

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

// Config holds runtime settings for the loader.
type Config struct {
	// MemoryLimitPages caps each module's memory in 64KB pages. 0 keeps the wazero default.
	MemoryLimitPages uint32
}

// Info describes a loaded module.
type Info struct {
	ID      objid.ID
	Name    string
	Exports []string
}

type loaded struct {
	compiled wazero.CompiledModule
	instance api.Module
}

// Loader owns the wazero runtime and the per-slot module state.
type Loader struct {
	reg     *registry.Registry
	runtime wazero.Runtime
	logger  *zap.Logger

	mu      sync.Mutex
	modules []*loaded
}

// NewLoader creates a loader with its own wazero runtime.
func NewLoader(ctx context.Context, reg *registry.Registry, cfg *Config, logger *zap.Logger) *Loader {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		reg:     reg,
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:  logger,
		modules: make([]*loaded, reg.Capacity(objid.TypeModule)),
	}
}

func (l *Loader) get(idx int) *loaded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.modules[idx]
}

func (l *Loader) set(idx int, m *loaded) {
	l.mu.Lock()
	l.modules[idx] = m
	l.mu.Unlock()
}

// Load compiles and instantiates wasm under name. A module that fails to
// compile or instantiate leaves no trace; its name is free again.
func (l *Loader) Load(ctx context.Context, name string, wasm []byte) (objid.ID, error) {
	if len(wasm) == 0 {
		return objid.Undefined, errors.InvalidSize("empty module")
	}

	tok, err := l.reg.AllocateNew(ctx, objid.TypeModule, name)
	if err != nil {
		return objid.Undefined, err
	}

	m, err := l.instantiate(ctx, wasm)
	if err != nil {
		l.logger.Debug("module load failed", zap.String("name", name), zap.Error(err))
		return l.reg.FinalizeNew(tok, errors.Wrap(errors.PhasePlatform, errors.KindError, err, "load "+name))
	}

	l.set(tok.Index, m)
	id, err := l.reg.FinalizeNew(tok, nil)
	if err != nil {
		l.set(tok.Index, nil)
		l.release(ctx, m)
		return objid.Undefined, err
	}

	l.logger.Debug("module loaded",
		zap.Stringer("id", id),
		zap.String("name", name),
		zap.Int("exports", len(m.compiled.ExportedFunctions())))
	return id, nil
}

func (l *Loader) instantiate(ctx context.Context, wasm []byte) (*loaded, error) {
	compiled, err := l.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	// anonymous, so the same module can be loaded under several names
	instance, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}
	return &loaded{compiled: compiled, instance: instance}, nil
}

func (l *Loader) release(ctx context.Context, m *loaded) {
	if err := m.instance.Close(ctx); err != nil {
		l.logger.Warn("close module instance", zap.Error(err))
	}
	if err := m.compiled.Close(ctx); err != nil {
		l.logger.Warn("close compiled module", zap.Error(err))
	}
}

// LoadFile reads path and loads it under name.
func (l *Loader) LoadFile(ctx context.Context, name, path string) (objid.ID, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return objid.Undefined, errors.Wrap(errors.PhasePlatform, errors.KindError, err, "read "+path)
	}
	return l.Load(ctx, name, wasm)
}

// Unload removes the module. It fails with object_in_use while a call into
// the module is running.
func (l *Loader) Unload(ctx context.Context, id objid.ID) error {
	tok, err := l.reg.GetByID(ctx, registry.LockExclusive, objid.TypeModule, id)
	if err != nil {
		return err
	}

	if m := l.get(tok.Index); m != nil {
		l.set(tok.Index, nil)
		l.release(ctx, m)
	}
	return l.reg.FinalizeDelete(tok, nil)
}

// Symbol returns the definition of the function symbol exported by module id.
func (l *Loader) Symbol(ctx context.Context, id objid.ID, symbol string) (api.FunctionDefinition, error) {
	tok, err := l.reg.GetByID(ctx, registry.LockGlobal, objid.TypeModule, id)
	if err != nil {
		return nil, err
	}
	defer tok.Release()

	m := l.get(tok.Index)
	if m == nil {
		return nil, errors.IncorrectState(errors.PhaseLookup, "module has no backing state")
	}
	def, ok := m.compiled.ExportedFunctions()[symbol]
	if !ok {
		return nil, errors.New(errors.PhaseLookup, errors.KindNameNotFound).
			ID(id).
			Name(symbol).
			Detail("symbol not exported").
			Build()
	}
	return def, nil
}

// SymbolLookup finds symbol in any loaded module and returns the first
// module exporting it.
func (l *Loader) SymbolLookup(ctx context.Context, symbol string) (objid.ID, error) {
	found := objid.Undefined
	_, err := l.reg.ForEachOfType(ctx, objid.TypeModule, objid.Undefined, func(id objid.ID) {
		if found != objid.Undefined {
			return
		}
		if _, err := l.Symbol(ctx, id, symbol); err == nil {
			found = id
		}
	})
	if err != nil {
		return objid.Undefined, err
	}
	if found == objid.Undefined {
		return objid.Undefined, errors.New(errors.PhaseLookup, errors.KindNameNotFound).
			Name(symbol).
			Detail("no module exports this symbol").
			Build()
	}
	return found, nil
}

// Call invokes the exported function symbol of module id. The module holds
// a reference for the duration of the call.
func (l *Loader) Call(ctx context.Context, id objid.ID, symbol string, params ...uint64) ([]uint64, error) {
	tok, err := l.reg.GetByID(ctx, registry.LockGlobal, objid.TypeModule, id)
	if err != nil {
		return nil, err
	}
	defer tok.Release()

	m := l.get(tok.Index)
	if m == nil {
		return nil, errors.IncorrectState(errors.PhaseLookup, "module has no backing state")
	}
	fn := m.instance.ExportedFunction(symbol)
	if fn == nil {
		return nil, errors.New(errors.PhaseLookup, errors.KindNameNotFound).
			ID(id).
			Name(symbol).
			Detail("symbol not exported").
			Build()
	}
	return fn.Call(ctx, params...)
}

// Info describes module id.
func (l *Loader) Info(ctx context.Context, id objid.ID) (Info, error) {
	tok, err := l.reg.GetByID(ctx, registry.LockGlobal, objid.TypeModule, id)
	if err != nil {
		return Info{}, err
	}
	defer tok.Release()

	info := Info{ID: id, Name: tok.Record().Name}
	if m := l.get(tok.Index); m != nil {
		for name := range m.compiled.ExportedFunctions() {
			info.Exports = append(info.Exports, name)
		}
		sort.Strings(info.Exports)
	}
	return info, nil
}

// Close unloads every module and closes the runtime.
func (l *Loader) Close(ctx context.Context) error {
	_, err := l.reg.ForEachOfType(ctx, objid.TypeModule, objid.Undefined, func(id objid.ID) {
		if err := l.Unload(ctx, id); err != nil {
			l.logger.Debug("unload on close", zap.Stringer("id", id), zap.Error(err))
		}
	})
	if cerr := l.runtime.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
