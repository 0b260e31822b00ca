package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/osal/metrics"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

type stressOptions struct {
	workers     int
	ops         int
	duration    time.Duration
	metricsAddr string
}

func newStressCommand(a *app) *cobra.Command {
	opts := stressOptions{}

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "churn mutexes from concurrent tasks and report the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.workers < 1 {
				return fmt.Errorf("--workers must be at least 1")
			}
			if opts.ops < 1 && opts.duration <= 0 {
				return fmt.Errorf("set --ops or --duration")
			}
			return runStress(cmd.Context(), a, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.workers, "workers", "w", 4, "number of worker tasks")
	flags.IntVarP(&opts.ops, "ops", "n", 200, "steps per worker, 0 runs until --duration")
	flags.DurationVarP(&opts.duration, "duration", "d", 0, "stop after this long")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}

func runStress(ctx context.Context, a *app, out io.Writer, opts stressOptions) error {
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	reg, err := a.newRegistry(ctx, a.cfg.Registry, registry.WithObserver(m))
	if err != nil {
		return err
	}
	defer reg.Teardown()
	promReg.MustRegister(metrics.NewCollector(reg))

	if opts.metricsAddr != "" {
		stop, err := serveMetrics(opts.metricsAddr, promReg, a.logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	w, err := newWorkload(reg, a.logger)
	if err != nil {
		return err
	}

	runCtx := ctx
	if opts.duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	start := time.Now()
	runErr := w.run(runCtx, opts.workers, opts.ops)
	elapsed := time.Since(start)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	closeErr := w.close(closeCtx)

	a.logger.Info("stress finished",
		zap.Int("workers", opts.workers),
		zap.Uint64("ops", w.ops.Load()),
		zap.Duration("elapsed", elapsed))

	fmt.Fprintf(out, "%d ops in %s\n", w.ops.Load(), elapsed.Round(time.Millisecond))
	for _, sc := range w.histogram() {
		fmt.Fprintf(out, "  status %4d  %d\n", sc.Status, sc.Count)
	}
	for _, t := range []objid.Type{objid.TypeTask, objid.TypeMutex} {
		s := reg.Stats(t)
		fmt.Fprintf(out, "%s: %d active, %d reserved, %d refs of %d\n", t, s.Active, s.Reserved, s.Refs, s.Capacity)
	}

	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("shutdown: %w", closeErr)
	}
	return nil
}

// serveMetrics exposes g on addr until the returned stop function runs.
func serveMetrics(addr string, g prometheus.Gatherer, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
