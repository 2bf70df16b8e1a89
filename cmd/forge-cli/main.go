// Package main 命令行入口（forge-cli）：填写参数并在本地运行一次生成
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/config"
	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/internal/interfaces/cli"
	"hephaestus-forge/internal/wire"
	"hephaestus-forge/pkg/logger"
)

// 退出码
const (
	exitOK       = 0
	exitFailed   = 1
	exitUsage    = 2
	exitCanceled = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("forge-cli", pflag.ContinueOnError)
	configDir := fs.String("config-dir", "", "directory containing config.yaml (default: ./configs)")
	preset := fs.String("preset", "", "YAML preset file with generation parameters")
	interactive := fs.BoolP("interactive", "i", false, "prompt for every parameter")
	dryRun := fs.Bool("dry-run", false, "print the command without running it")
	formFlags := cli.RegisterFormFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitFailed
	}
	logger.InitWithWriter(os.Stderr, cfg.Observability.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req, err := buildRequest(ctx, *preset, *interactive, formFlags)
	if err != nil {
		if errors.Is(err, cli.ErrAborted) {
			return exitCanceled
		}
		fmt.Fprintf(os.Stderr, "invalid parameters: %v\n", err)
		return exitUsage
	}

	if *dryRun {
		opts, err := forge.NewOptions(cfg.Generator)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid generator config: %v\n", err)
			return exitFailed
		}
		fmt.Println(forge.Command(req, opts))
		return exitOK
	}

	return generate(ctx, cfg, req)
}

func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.LoadFrom(dir)
	}
	return config.Load()
}

// buildRequest 默认值 < 预设文件 < 命令行标志 < 交互输入
func buildRequest(ctx context.Context, preset string, interactive bool, flags *cli.FormFlags) (entity.GenerationRequest, error) {
	req := entity.DefaultGenerationRequest()
	if preset != "" {
		var err error
		if req, err = forge.LoadPreset(preset); err != nil {
			return req, err
		}
	}
	if err := flags.Apply(&req); err != nil {
		return req, err
	}
	if interactive {
		return cli.FillForm(ctx, cli.NewSurveyDriver(), req)
	}
	return req, req.Validate()
}

func generate(ctx context.Context, cfg *config.Config, req entity.GenerationRequest) int {
	orch, cleanup, err := wire.InitializeOrchestrator(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "failed to initialize orchestrator", err)
		return exitFailed
	}
	defer cleanup()

	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		if err := orch.Run(loopCtx); err != nil {
			logger.Error(loopCtx, "orchestrator stopped", err)
		}
	}()
	defer func() {
		stopLoop()
		<-orch.Done()
	}()

	snap, err := cli.Run(ctx, orch, req, cli.NewPrinter(os.Stdout, os.Stderr))
	switch {
	case errors.Is(err, context.Canceled):
		return exitCanceled
	case err != nil:
		logger.Error(ctx, "generation failed", err)
		return exitFailed
	case snap.Status != entity.SessionStatusCompleted:
		return exitFailed
	}
	return exitOK
}
