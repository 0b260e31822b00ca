package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/osal/config"
	"github.com/wippyai/osal/internal/logutil"
	"github.com/wippyai/osal/registry"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

// newRegistry builds and initializes a registry from the loaded config.
func (a *app) newRegistry(ctx context.Context, cfg config.Registry, opts ...registry.Option) (*registry.Registry, error) {
	opts = append([]registry.Option{registry.WithLogger(a.logger.Named("registry"))}, opts...)
	reg, err := registry.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}
	if err := reg.Init(ctx); err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}
	return reg, nil
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{cfg: config.Default(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "osal",
		Short:         "object registry of the OS abstraction layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format, _ = cmd.Flags().GetString("log-format")
			}

			logger, err := logutil.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}

			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringP("config", "C", "", "path to a TOML configuration file")
	flags.String("log-level", logutil.DefaultLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", logutil.FormatConsole, "log format (console, json)")

	root.AddCommand(
		newDemoCommand(a),
		newStressCommand(a),
		newTopCommand(a),
		newModuleCommand(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
