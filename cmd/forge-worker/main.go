// Package main 生成任务队列 worker 入口（forge-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"hephaestus-forge/internal/config"
	"hephaestus-forge/internal/infrastructure/messaging"
	"hephaestus-forge/internal/wire"
	"hephaestus-forge/pkg/logger"
	"hephaestus-forge/pkg/tracer"
)

// Version 版本信息，构建时注入
var Version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flushSentry, err := logger.InitSentry(logger.SentryConfig{
		DSN:              cfg.Observability.Sentry.DSN,
		Environment:      cfg.App.Env,
		Release:          "forge-worker@" + Version,
		TracesSampleRate: cfg.Observability.Sentry.TracesSampleRate,
	})
	if err != nil {
		logger.Warn(ctx, "failed to init sentry", "error", err.Error())
	}
	defer flushSentry()

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "forge-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	worker.Consumer.RegisterHandler(messaging.TypeGenerationJob, handleGenerationJob(worker.Orchestrator))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Orchestrator.Run(gctx)
	})
	g.Go(func() error {
		if err := worker.Consumer.Start(gctx); err != nil {
			return err
		}
		logger.Info(gctx, "forge-worker started", "stream", messaging.StreamForgeJobs)
		<-gctx.Done()
		worker.Consumer.Stop()
		<-worker.Consumer.Done()
		return nil
	})
	g.Go(func() error {
		worker.Consumer.MonitorDLQ(gctx, time.Minute, 10)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "forge-worker exited with error", err)
		flushSentry()
		os.Exit(1)
	}
	logger.Info(context.Background(), "forge-worker stopped")
}
