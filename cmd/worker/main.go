// Package main is the matching worker: it regenerates pending assignment
// proposals for configured teams on a schedule, writes the audit log for
// applied proposals and serves health probes, Prometheus metrics and the
// JSON API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/afterschool-matching/config"
	"github.com/alem-hub/afterschool-matching/internal/bootstrap"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/scheduler"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/telemetry"
	apihttp "github.com/alem-hub/afterschool-matching/internal/interface/http"
	"github.com/alem-hub/afterschool-matching/internal/interface/http/handlers"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()
	log.Info("starting afterschool matching worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
	)

	shutdownTracing, err := telemetry.Setup(telemetry.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    string(cfg.App.Environment),
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORES, EVENT BUS & HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := bootstrap.New(ctx, cfg, log, reg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Timezone:          cfg.App.Location,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
	}, app.Metrics, log)

	if cfg.Scheduler.Enabled && len(cfg.Matching.Teams) > 0 {
		var locker jobs.Locker
		if app.Cache != nil {
			locker = app.Cache
		}
		job := jobs.NewProposeTeamAssignmentsJob(app.ProposeAssignments, locker, jobs.ProposeTeamAssignmentsConfig{
			Teams:        cfg.Matching.Teams,
			BatchTimeout: cfg.Matching.BatchTimeout,
		}, log)
		if err := sched.Register(job, scheduler.EveryAligned(cfg.Scheduler.ProposalInterval)); err != nil {
			return fmt.Errorf("failed to register job: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Info("scheduler disabled or no teams configured",
			logger.Bool("enabled", cfg.Scheduler.Enabled),
			logger.Strings("teams", cfg.Matching.Teams),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP: PROBES, METRICS & API
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.PingCheck(app.DB))
	if app.Cache != nil {
		health.AddOptionalCheck("redis", handlers.PingCheck(app.Cache))
	}

	deps := apihttp.Dependencies{
		Compatibility: app.GetCompatibility,
		Analyze:       app.BatchAnalyze,
		Propose:       app.ProposeAssignments,
		Apply:         app.ApplyProposal,
		Cancel:        app.CancelProposal,
		Ingest:        app.IngestProfile,
		Proposals:     app.Proposals,
		Audit:         app.Audit,
		Health:        health,
		Logger:        log,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	srv := apihttp.NewServer(apihttp.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
		EnableAPI:      cfg.HTTP.APIEnabled,
	}, deps)
	srvErr := srv.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-srvErr:
		if ok {
			log.Error("http server failed", logger.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if sched.IsRunning() {
		if err := sched.Stop(); err != nil {
			log.Warn("failed to stop scheduler", logger.Err(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to stop http server", logger.Err(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("failed to flush traces", logger.Err(err))
	}

	log.Info("shutdown completed")
	return nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	if cfg.Observability.LogFormat == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(logger.Component("worker"))
}
