package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/tutoring-hub/internal/application/ingest"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr     string
	schedule string
	s3       bool
}

func newServeMetricsCmd(c *cli) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose Prometheus metrics and a health check, optionally refreshing on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd, func(ctx context.Context, a *app) error {
				addr := opts.addr
				if addr == "" {
					addr = a.cfg.Observability.MetricsAddr
				}
				spec := opts.schedule
				if !cmd.Flags().Changed("refresh-schedule") {
					spec = a.cfg.Ingest.RefreshSchedule
				}
				if spec != "" {
					sched, err := startRefresh(ctx, a, spec, opts.s3)
					if err != nil {
						return err
					}
					defer func() { _ = sched.Stop() }()
				}
				return serveHTTP(ctx, a, addr)
			})
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default METRICS_ADDR)")
	cmd.Flags().StringVar(&opts.schedule, "refresh-schedule", "", `Merge refresh schedule: "@every 15m" or a cron expression (default INGEST_REFRESH_SCHEDULE)`)
	cmd.Flags().BoolVar(&opts.s3, "s3", false, "Include the configured bucket in scheduled refreshes")
	return cmd
}

// newServeMux маршрутизирует /metrics и /healthz.
func newServeMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.recorder.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status, err := a.status.Handle(r.Context())
		if err != nil {
			a.log.Warn("health check failed", logger.Err(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = writeJSON(w, map[string]string{"status": "unavailable"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = writeJSON(w, map[string]any{"status": "ok", "totals": status.Totals})
	})
	return mux
}

func serveHTTP(ctx context.Context, a *app, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeMux(a),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("metrics server listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// контекст команды уже отменён, поэтому новый
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.log.Info("metrics server stopping")
	return srv.Shutdown(shutdownCtx)
}

// startRefresh регистрирует слияние по расписанию. Источники
// перечитываются на каждом запуске.
func startRefresh(ctx context.Context, a *app, spec string, withS3 bool) (*scheduler.Scheduler, error) {
	schedule, err := scheduler.ParseSchedule(spec)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}

	sched := scheduler.New(scheduler.Config{Logger: a.log, Recorder: a.recorder})
	job := jobs.NewMergeRefreshJob(a.ingest, func(ctx context.Context) ([]ingest.Source, error) {
		return resolveSources(ctx, a, nil, importOptions{s3: withS3})
	}, a.log)
	if err := sched.Register(job, schedule); err != nil {
		return nil, err
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	return sched, nil
}
