package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/PizzaHomicide/acectl/internal/config"
	"github.com/PizzaHomicide/acectl/internal/hostplayer"
	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/metrics"
	"github.com/PizzaHomicide/acectl/internal/session"
	"github.com/PizzaHomicide/acectl/internal/ui/tui"
	"github.com/PizzaHomicide/acectl/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// It is unrecoverable if we cannot produce an application config
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialise logger
	logger, err := log.New(log.Config{
		Level:    cfg.Logging.Level,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	// Set the default global logger
	log.SetDefaultLogger(logger)

	log.Info("Starting up acectl", "version", version.GetVersion(), "build_time", version.GetBuildTime(),
		"engine_network", cfg.Engine.Network, "engine_address", cfg.Engine.Address)

	stopMetrics := serveMetrics(cfg.Metrics.ListenAddr, logger)
	defer stopMetrics()

	player, err := hostplayer.New(cfg.Player, logger)
	if err != nil {
		log.Error("Failed to create host player", "error", err)
		os.Exit(1)
	}

	rt := session.NewRuntime(session.OptionsFromConfig(cfg), logger)
	if err := tui.Run(cfg, rt, player); err != nil {
		log.Error("Unhandled error while running TUI", "error", err)
		os.Exit(1)
	}

	if live := rt.Live(); live > 0 {
		log.Warn("Sessions still alive at shutdown", "count", live)
	}
	log.Info("acectl shutting down.  Goodbye!")
}

// serveMetrics exposes the session metrics over http when addr is set.  The returned func stops the server.
func serveMetrics(addr string, logger *log.Logger) func() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Failed to stop metrics server", "error", err)
		}
	}
}
