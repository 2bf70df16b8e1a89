//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/config"
	"hephaestus-forge/internal/interfaces/http/handler"
	"hephaestus-forge/internal/interfaces/http/router"
)

// InitializeServer 初始化 HTTP 服务（Redis 可选）
func InitializeServer(ctx context.Context, cfg *config.Config) (*Server, func(), error) {
	wire.Build(
		OptionalRedisSet,
		ForgeSet,
		RouterSet,
		wire.Struct(new(Server), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化队列 worker（Redis 必需）
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RequiredRedisSet,
		ForgeSet,
		ProvideConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeOrchestrator 初始化本地编排器（CLI 使用，Redis 可选）
func InitializeOrchestrator(ctx context.Context, cfg *config.Config) (*forge.Orchestrator, func(), error) {
	wire.Build(
		OptionalRedisSet,
		ForgeSet,
	)
	return nil, nil, nil
}

// HistorySet 依赖 Redis 客户端的会话历史与事件发布，客户端为 nil 时降级
var HistorySet = wire.NewSet(
	ProvideSessionStore,
	ProvideMessagingProducer,
)

// OptionalRedisSet Redis 不可用时不阻塞启动
var OptionalRedisSet = wire.NewSet(
	ProvideRedisClientOptional,
	HistorySet,
)

// RequiredRedisSet Redis 不可用时启动失败
var RequiredRedisSet = wire.NewSet(
	ProvideRedisClient,
	HistorySet,
)

// ForgeSet 编排器提供者集合
var ForgeSet = wire.NewSet(
	ProvideGeneratorOptions,
	ProvideLauncher,
	ProvideObservers,
	ProvideOrchestrator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideSessionRepository,
	ProvideJobPublisher,
	ProvideRateLimiter,
	ProvideGenerator,
	ProvideHealthHandler,
	handler.NewFormHandler,
	handler.NewGenerationHandler,
	handler.NewSessionHandler,
	handler.NewStreamHandler,
	wire.Struct(new(router.RouterHandlers), "*"),
	router.NewWithDeps,
)
