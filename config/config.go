// Package config holds the registry's tunables: one capacity per object type,
// the name length limit and the exclusive-lock retry policy.
//
// Values come from Default, optionally overlaid by a TOML file (FromPath) and
// then by OSAL_* environment variables (ApplyEnv).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/internal/logutil"
	"github.com/wippyai/osal/objid"
)

const (
	DefaultCapacity    = 64
	DefaultMaxNameLen  = 20
	DefaultMaxAttempts = 4
	DefaultBaseBackoff = 10 * time.Millisecond
	DefaultMaxBackoff  = time.Second

	envPrefix = "OSAL"
)

// Config is the top-level configuration for the osal command.
type Config struct {
	Registry Registry       `toml:"registry"`
	Log      logutil.Config `toml:"log"`
}

// Registry sizes the per-type tables.
type Registry struct {
	MaxTasks     int `toml:"max-tasks" envconfig:"MAX_TASKS"`
	MaxQueues    int `toml:"max-queues" envconfig:"MAX_QUEUES"`
	MaxCountSems int `toml:"max-count-sems" envconfig:"MAX_COUNT_SEMS"`
	MaxBinSems   int `toml:"max-bin-sems" envconfig:"MAX_BIN_SEMS"`
	MaxMutexes   int `toml:"max-mutexes" envconfig:"MAX_MUTEXES"`
	MaxStreams   int `toml:"max-streams" envconfig:"MAX_STREAMS"`
	MaxDirs      int `toml:"max-dirs" envconfig:"MAX_DIRS"`
	MaxTimeBases int `toml:"max-time-bases" envconfig:"MAX_TIME_BASES"`
	MaxTimers    int `toml:"max-timers" envconfig:"MAX_TIMERS"`
	MaxModules   int `toml:"max-modules" envconfig:"MAX_MODULES"`
	MaxFileSys   int `toml:"max-file-sys" envconfig:"MAX_FILE_SYS"`
	MaxConsoles  int `toml:"max-consoles" envconfig:"MAX_CONSOLES"`
	MaxCondVars  int `toml:"max-cond-vars" envconfig:"MAX_COND_VARS"`
	MaxRWLocks   int `toml:"max-rw-locks" envconfig:"MAX_RW_LOCKS"`
	MaxSockets   int `toml:"max-sockets" envconfig:"MAX_SOCKETS"`

	// MaxNameLen bounds object names, in bytes.
	MaxNameLen int `toml:"max-name-len" envconfig:"MAX_NAME_LEN"`

	Lock Lock `toml:"lock"`
}

// Lock tunes the wait performed when an exclusive request finds the object referenced.
// Attempt n waits n*n*BaseBackoff for n <= 10 and MaxBackoff beyond, never more than MaxBackoff.
type Lock struct {
	MaxAttempts int           `toml:"max-attempts" envconfig:"MAX_ATTEMPTS"`
	BaseBackoff time.Duration `toml:"base-backoff" envconfig:"BASE_BACKOFF"`
	MaxBackoff  time.Duration `toml:"max-backoff" envconfig:"MAX_BACKOFF"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Registry: DefaultRegistry(),
		Log:      logutil.DefaultConfig(),
	}
}

// DefaultRegistry returns DefaultCapacity slots for every type.
func DefaultRegistry() Registry {
	r := Registry{
		MaxNameLen: DefaultMaxNameLen,
		Lock: Lock{
			MaxAttempts: DefaultMaxAttempts,
			BaseBackoff: DefaultBaseBackoff,
			MaxBackoff:  DefaultMaxBackoff,
		},
	}
	for _, t := range objid.Types() {
		*r.capacityField(t) = DefaultCapacity
	}
	return r
}

// Uniform returns a registry configuration with capacity slots for every type.
func Uniform(capacity int) Registry {
	r := DefaultRegistry()
	for _, t := range objid.Types() {
		*r.capacityField(t) = capacity
	}
	return r
}

func (r *Registry) capacityField(t objid.Type) *int {
	switch t {
	case objid.TypeTask:
		return &r.MaxTasks
	case objid.TypeQueue:
		return &r.MaxQueues
	case objid.TypeCountSem:
		return &r.MaxCountSems
	case objid.TypeBinSem:
		return &r.MaxBinSems
	case objid.TypeMutex:
		return &r.MaxMutexes
	case objid.TypeStream:
		return &r.MaxStreams
	case objid.TypeDir:
		return &r.MaxDirs
	case objid.TypeTimeBase:
		return &r.MaxTimeBases
	case objid.TypeTimeCB:
		return &r.MaxTimers
	case objid.TypeModule:
		return &r.MaxModules
	case objid.TypeFileSys:
		return &r.MaxFileSys
	case objid.TypeConsole:
		return &r.MaxConsoles
	case objid.TypeCondVar:
		return &r.MaxCondVars
	case objid.TypeRWLock:
		return &r.MaxRWLocks
	case objid.TypeSocket:
		return &r.MaxSockets
	}
	return nil
}

// Capacity returns the table size for t, or 0 for an invalid type.
func (r Registry) Capacity(t objid.Type) int {
	if p := r.capacityField(t); p != nil {
		return *p
	}
	return 0
}

// SetCapacity sets the table size for t.
func (r *Registry) SetCapacity(t objid.Type, n int) {
	if p := r.capacityField(t); p != nil {
		*p = n
	}
}

// Validate checks every capacity against objid.MaxCapacity and the lock policy.
func (r Registry) Validate() error {
	for _, t := range objid.Types() {
		n := r.Capacity(t)
		if n < 1 || n > objid.MaxCapacity {
			return errors.InvalidSize(fmt.Sprintf("%s capacity %d outside 1..%d", t, n, objid.MaxCapacity))
		}
	}
	if r.MaxNameLen < 1 {
		return errors.InvalidSize(fmt.Sprintf("max name length %d", r.MaxNameLen))
	}
	if r.Lock.MaxAttempts < 1 {
		return errors.InvalidSize(fmt.Sprintf("lock attempts %d", r.Lock.MaxAttempts))
	}
	if r.Lock.BaseBackoff <= 0 || r.Lock.MaxBackoff < r.Lock.BaseBackoff {
		return errors.InvalidSize(fmt.Sprintf("lock backoff %s..%s", r.Lock.BaseBackoff, r.Lock.MaxBackoff))
	}
	return nil
}

// FromPath loads a TOML file over the defaults.
func FromPath(filename string) (*Config, error) {
	cfg := Default()
	if ext := filepath.Ext(filename); ext != ".toml" {
		return nil, fmt.Errorf("invalid config format: %s", ext)
	}
	if _, err := toml.DecodeFile(filename, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return cfg, nil
}

// Load reads filename when it exists (an empty name means defaults only),
// applies the environment and validates the result.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if cfg, err = FromPath(filename); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", filename, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Registry.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays OSAL_* variables (OSAL_MAX_TASKS, OSAL_LOCK_MAX_ATTEMPTS,
// OSAL_LOG_LEVEL, ...). Unset variables leave the current values alone.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(envPrefix, &cfg.Registry); err != nil {
		return fmt.Errorf("failed to load registry env: %w", err)
	}
	if err := envconfig.Process(envPrefix+"_LOG", &cfg.Log); err != nil {
		return fmt.Errorf("failed to load log env: %w", err)
	}
	return nil
}

// Save writes cfg as TOML.
func (cfg *Config) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
