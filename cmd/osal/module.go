package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/osal/module"
)

type moduleOptions struct {
	name        string
	call        string
	args        []string
	memoryPages uint32
}

func newModuleCommand(a *app) *cobra.Command {
	opts := moduleOptions{}

	cmd := &cobra.Command{
		Use:   "module <file.wasm>",
		Short: "load a WebAssembly module as a registry object and list or call its symbols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(cmd.Context(), a, cmd.OutOrStdout(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.name, "name", "", "object name, defaults to the file name")
	flags.StringVar(&opts.call, "call", "", "exported function to call")
	flags.StringSliceVar(&opts.args, "arg", nil, "integer argument for --call, repeatable")
	flags.Uint32Var(&opts.memoryPages, "memory-pages", 0, "memory limit in 64KB pages")
	return cmd
}

func runModule(ctx context.Context, a *app, out io.Writer, path string, opts moduleOptions) error {
	reg, err := a.newRegistry(ctx, a.cfg.Registry)
	if err != nil {
		return err
	}
	defer reg.Teardown()

	loader := module.NewLoader(ctx, reg, &module.Config{MemoryLimitPages: opts.memoryPages}, a.logger.Named("module"))
	defer loader.Close(context.WithoutCancel(ctx))

	name := opts.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if limit := reg.MaxNameLen(); len(name) > limit {
			name = name[:limit]
		}
	}

	id, err := loader.LoadFile(ctx, name, path)
	if err != nil {
		return err
	}

	info, err := loader.Info(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", info.ID, info.Name)
	for _, sym := range info.Exports {
		def, err := loader.Symbol(ctx, id, sym)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s(%d) -> %d\n", sym, len(def.ParamTypes()), len(def.ResultTypes()))
	}

	if opts.call == "" {
		return nil
	}

	params := make([]uint64, len(opts.args))
	for i, arg := range opts.args {
		v, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		params[i] = uint64(v)
	}

	owner, err := loader.SymbolLookup(ctx, opts.call)
	if err != nil {
		return err
	}
	results, err := loader.Call(ctx, owner, opts.call, params...)
	if err != nil {
		return fmt.Errorf("call %s: %w", opts.call, err)
	}
	fmt.Fprintf(out, "%s -> %v\n", opts.call, results)
	return nil
}
