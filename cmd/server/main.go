package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/s7dump/internal/bridge"
	"github.com/me/s7dump/internal/config"
	"github.com/me/s7dump/internal/coordinator"
	"github.com/me/s7dump/internal/logging"
	"github.com/me/s7dump/internal/metrics"
	"github.com/me/s7dump/internal/orchestrator"
	"github.com/me/s7dump/internal/payload"
	"github.com/me/s7dump/internal/power"
	"github.com/me/s7dump/internal/profile"
	"github.com/me/s7dump/internal/protocol"
	"github.com/me/s7dump/internal/schedule"
	"github.com/me/s7dump/internal/scheduler"
	"github.com/me/s7dump/internal/server"
	"github.com/me/s7dump/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to server config file (YAML)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "Database path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat := flag.String("log-format", "", "Log format: text, json (overrides config)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	// Resource coordination and profile management.
	coord := coordinator.New(logger)
	profiles := profile.NewManager(st, coord, logger)
	if err := profiles.EnsureDefaults(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "seed default profiles: %v\n", err)
		os.Exit(1)
	}

	// Prometheus registry for /metrics.
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Hardware collaborators.
	bridges := bridge.NewManager(bridge.Config{
		SocatPath: cfg.SocatPath,
		SttyPath:  cfg.SttyPath,
	}, logger)
	defer bridges.Close()

	orch := orchestrator.New(orchestrator.Config{
		Clients: func(host string, port int) orchestrator.Client {
			return protocol.NewTCPClient(host, port, logger)
		},
		Payloads: payload.NewFileProvider(),
		Power:    power.NewTCPController(logger),
		Bridge:   bridges,
	}, logger)

	// Scheduler with persisted history and metrics.
	sched := scheduler.New(coord, orch, scheduler.Config{
		EventBuffer: cfg.EventBuffer,
		History:     st,
		Metrics:     m,
	}, logger)
	broker := scheduler.NewBroker(sched.Events(), logger)

	// Cron schedule firing.
	schedules := schedule.NewService(st, profiles, sched, schedule.Config{
		PollInterval: cfg.SchedulePollInterval,
	}, logger)

	srv := server.New(cfg, server.Deps{
		Store:       st,
		Scheduler:   sched,
		Profiles:    profiles,
		Coordinator: coord,
		Broker:      broker,
		Schedules:   schedules,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := schedules.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("schedule service failed", "error", err)
		}
	}()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop the scheduler before the HTTP server so in-flight jobs
	// finish their teardown and land in history.
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
