package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/definition"
	"github.com/aristath/taskflow/internal/orchestrator"
	"github.com/aristath/taskflow/internal/report"
	"github.com/aristath/taskflow/internal/scheduler"
)

func (a *app) runCmd() *cobra.Command {
	var maxConcurrent int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := a.output()

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-concurrent") {
				if maxConcurrent <= 0 {
					return fmt.Errorf("--max-concurrent must be positive, got %d", maxConcurrent)
				}
				cfg.Engine.MaxConcurrent = maxConcurrent
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			def, err := definition.Load(args[0])
			if err != nil {
				return err
			}
			if _, err := def.Order(); err != nil {
				return err
			}

			logger := a.logger()
			runner, err := orchestrator.NewRunner(ctx, cfg, orchestrator.RunnerOptions{Logger: logger})
			if err != nil {
				return err
			}
			defer runner.Close()

			if cfg.Metrics.Addr != "" {
				srv := serveMetrics(cfg.Metrics.Addr, runner.Metrics().Handler(), logger.Error)
				defer shutdown(srv)
			}

			watchDone := make(chan struct{})
			if !a.jsonOutput {
				fmt.Fprintf(a.stderr, "Running %s: %d tasks, up to %d at a time\n",
					def.Name, len(def.Tasks), runner.Engine().MaxConcurrent())
				ch := runner.Bus().SubscribeAll(0)
				go func() {
					defer close(watchDone)
					report.Watch(ctx, a.stderr, ch)
				}()
			} else {
				close(watchDone)
			}

			result, err := runner.Run(ctx, def)
			if err != nil {
				return err
			}

			select {
			case <-watchDone:
			case <-time.After(time.Second):
			}

			if err := out.Print(result, func(w io.Writer) { report.Outcome(w, result) }); err != nil {
				return err
			}
			if result.Status != scheduler.WorkflowCompleted {
				return fmt.Errorf("%w: %s", errNotCompleted, result.Status)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Override engine.max_concurrent")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")

	return cmd
}

// serveMetrics exposes /metrics and /healthz on addr in the background.
func serveMetrics(addr string, metrics http.Handler, logError func(string, ...any)) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError("metrics server error", "addr", addr, "error", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
