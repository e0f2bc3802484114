package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"gestionale/internal/api"
	"gestionale/internal/backend"
	"gestionale/internal/cache"
	"gestionale/internal/cli"
	apphttp "gestionale/internal/http"
	"gestionale/internal/log"
	"gestionale/internal/menu"
	"gestionale/internal/metrics"
	"gestionale/internal/screens"
)

const (
	metricsNamespace = "gestionale"
	optionsCacheSize = 512
	cleanupInterval  = time.Minute
	shutdownTimeout  = 30 * time.Second
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)
	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	infra, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", bcfg.Type.String())
		os.Exit(1)
	}
	defer func() {
		if err := infra.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, metricsNamespace)

	client, err := api.New(api.ClientConfig{
		BaseURL:  cfg.BackendAPIURL,
		Timeout:  cfg.BackendTimeout,
		Logger:   logger.WithComponent(log.ComponentAPI),
		Observer: m.BackendObserver(),
	})
	if err != nil {
		logger.Error("Invalid backend API URL", log.FieldError, err)
		os.Exit(1)
	}

	options := cache.NewOptions(optionsCacheSize, cfg.OptionsCacheTTL)
	metrics.RegisterCacheStats(reg, metricsNamespace, "options", options.Stats)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		Client:             client,
		Sessions:           infra.Sessions,
		Recorder:           infra.Recorder,
		Activity:           infra.Activity,
		Catalogue:          screens.Default(),
		Options:            options,
		Metrics:            m,
		Checks:             infra.Checks,
		Logger:             logger,
		SessionTTL:         cfg.SessionTTL,
		SessionCookie:      cfg.SessionCookie,
		SuperAdminRole:     cfg.SuperAdminRole,
		MenuOptions:        menu.Options{NarrowMatchedGroups: cfg.MenuNarrowMatchedGroups},
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	cleaner := cache.NewManager(logger)
	cleaner.Register(options)
	cleaner.Register(cache.CleanerFunc(srv.ReapWorkspaces))
	if p, ok := infra.Sessions.(backend.Purger); ok {
		cleaner.Register(cache.CleanerFunc(func() int {
			n, err := p.Purge(ctx)
			if err != nil {
				logger.Warn("Session purge failed", log.FieldError, err)
			}
			return n
		}))
	}
	cleaner.StartCleanup(cleanupInterval)
	defer cleaner.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting console",
			"port", cfg.Port,
			"backend_api", cfg.BackendAPIURL,
			"session_backend", bcfg.Type.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		logger.Info("Shutting down console", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Console stopped gracefully")
}
