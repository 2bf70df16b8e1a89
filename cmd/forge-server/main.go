// Package main HTTP 服务入口（forge-server）
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"hephaestus-forge/internal/config"
	"hephaestus-forge/internal/wire"
	"hephaestus-forge/pkg/logger"
	"hephaestus-forge/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = Version
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.FromContext(ctx)
	log.Info("starting forge-server",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	flushSentry, err := logger.InitSentry(logger.SentryConfig{
		DSN:              cfg.Observability.Sentry.DSN,
		Environment:      cfg.App.Env,
		Release:          "forge-server@" + Version,
		TracesSampleRate: cfg.Observability.Sentry.TracesSampleRate,
	})
	if err != nil {
		log.Warn("failed to init sentry", "error", err)
	}
	defer flushSentry()

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	app, cleanup, err := wire.InitializeServer(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize server", err)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     app.Router.Engine(),
		ReadTimeout: cfg.Server.HTTP.ReadTimeout,
		// 默认 0，事件流连接不受写超时限制
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Orchestrator.Run(gctx)
	})

	g.Go(func() error {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "server exited with error", err)
		flushSentry()
		os.Exit(1)
	}

	log.Info("server exited")
}
