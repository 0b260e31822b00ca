// Package logutil builds the zap loggers used by the osal command and tests.
package logutil

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultLevel  = "info"
	DefaultFormat = FormatConsole

	FormatConsole = "console"
	FormatJSON    = "json"

	StdErrOutput = "stderr"
	StdOutOutput = "stdout"
)

// Config defines logger configuration.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" envconfig:"LEVEL"`
	// Format is console or json.
	Format string `toml:"format" envconfig:"FORMAT"`
	// Outputs are "stderr", "stdout" or file paths.
	Outputs []string `toml:"outputs" envconfig:"OUTPUTS"`
	// Rotation enables lumberjack rotation for file outputs.
	Rotation *RotationConfig `toml:"rotation" ignored:"true"`
}

// RotationConfig is passed to lumberjack for every file output.
// MaxSize is in megabytes, MaxAge in days.
type RotationConfig struct {
	MaxSize    int  `toml:"max-size"`
	MaxAge     int  `toml:"max-age"`
	MaxBackups int  `toml:"max-backups"`
	LocalTime  bool `toml:"localtime"`
	Compress   bool `toml:"compress"`
}

// DefaultConfig returns a console logger at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:   DefaultLevel,
		Format:  DefaultFormat,
		Outputs: []string{StdErrOutput},
	}
}

// New creates a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", FormatConsole:
		encoder = zapcore.NewConsoleEncoder(encoderConfig(true))
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig(false))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{StdErrOutput}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(outputs))
	for _, out := range outputs {
		syncers = append(syncers, writeSyncer(out, cfg.Rotation))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller()), nil
}

// NewDefault creates a logger with DefaultConfig, falling back to a no-op logger.
func NewDefault() *zap.Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func writeSyncer(output string, rotation *RotationConfig) zapcore.WriteSyncer {
	switch output {
	case StdErrOutput:
		return zapcore.Lock(os.Stderr)
	case StdOutOutput:
		return zapcore.Lock(os.Stdout)
	}

	lj := &lumberjack.Logger{Filename: output}
	if rotation != nil {
		lj.MaxSize = rotation.MaxSize
		lj.MaxAge = rotation.MaxAge
		lj.MaxBackups = rotation.MaxBackups
		lj.LocalTime = rotation.LocalTime
		lj.Compress = rotation.Compress
	}
	return zapcore.AddSync(lj)
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
