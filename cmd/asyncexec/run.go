package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/asyncexec/api"
	audithook "github.com/xraph/asyncexec/audit_hook"
	"github.com/xraph/asyncexec/engine"
	"github.com/xraph/asyncexec/job"
)

// logHandlerType is the built-in handler every node registers. It writes
// the job's configuration to the log and succeeds.
const logHandlerType = "log"

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		httpAddr      string
		audit         bool
		auditSeverity string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an executor node with its admin API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := g.config()
			if err != nil {
				return err
			}
			logger := g.logger()

			s, closeStore, err := openStore(ctx, g, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			opts := []engine.Option{
				engine.WithConfig(cfg),
				engine.WithLogger(logger),
			}
			if audit {
				opts = append(opts, engine.WithExtension(auditLog(logger, auditSeverity)))
			}
			eng, err := engine.New(s, opts...)
			if err != nil {
				return err
			}
			engine.Register(eng, job.NewDefinition(logHandlerType,
				func(ctx context.Context, j *job.Job, payload json.RawMessage) error {
					logger.InfoContext(ctx, "job executed",
						slog.String("job_id", j.ID.String()),
						slog.String("process_instance_id", j.ProcessInstanceID),
						slog.String("config", string(payload)),
					)
					return nil
				},
			))

			srv := httpServer(httpAddr, eng, logger)
			if srv != nil {
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http server", slog.String("error", err.Error()))
					}
				}()
			}

			if err := eng.Start(ctx); err != nil {
				return err
			}
			logger.Info("node started",
				slog.String("node", eng.NodeName()),
				slog.String("backend", g.backend),
			)

			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if srv != nil {
				_ = srv.Shutdown(stopCtx)
			}
			return eng.Stop(stopCtx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", ":9464", "listen address for /metrics and the /v1 admin API, empty disables both")
	cmd.Flags().BoolVar(&audit, "audit", false, "write job lifecycle audit events to the log")
	cmd.Flags().StringVar(&auditSeverity, "audit-severity", audithook.SeverityInfo, "lowest audit severity to log: info, warning or critical")
	return cmd
}

// auditLog records audit events as structured log lines.
func auditLog(logger *slog.Logger, minSeverity string) *audithook.Extension {
	return audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			slog.String("action", evt.Action),
			slog.String("job_id", evt.ResourceID),
			slog.String("tenant_id", evt.TenantID),
			slog.String("severity", evt.Severity),
			slog.String("outcome", evt.Outcome),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	}), audithook.WithLogger(logger), audithook.WithMinSeverity(minSeverity))
}

func httpServer(addr string, eng *engine.Engine, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		eng.Collector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/v1/", api.New(eng, logger).Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
