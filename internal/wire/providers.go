// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/config"
	"hephaestus-forge/internal/domain/repository"
	"hephaestus-forge/internal/infrastructure/messaging"
	"hephaestus-forge/internal/infrastructure/persistence/redis"
	"hephaestus-forge/internal/interfaces/http/handler"
	"hephaestus-forge/internal/interfaces/http/middleware"
	"hephaestus-forge/internal/interfaces/http/router"
	"hephaestus-forge/pkg/logger"
)

// Server HTTP 服务依赖容器
type Server struct {
	Router       *router.Router
	Orchestrator *forge.Orchestrator
	Redis        *redis.Client
}

// Worker 队列 worker 依赖容器
type Worker struct {
	Orchestrator *forge.Orchestrator
	Consumer     *messaging.Consumer
	Redis        *redis.Client
}

// ProvideGeneratorOptions 由配置构建编排器参数
func ProvideGeneratorOptions(cfg *config.Config) (forge.Options, error) {
	return forge.NewOptions(cfg.Generator)
}

// ProvideLauncher 提供子进程启动器
func ProvideLauncher(cfg *config.Config) forge.Launcher {
	launcher := forge.NewExecLauncher()
	if cfg.Generator.OutputDrainGrace > 0 {
		launcher.DrainGrace = cfg.Generator.OutputDrainGrace
	}
	return launcher
}

// ProvideRedisClientOptional Redis 未启用或不可达时返回 nil，相关功能降级
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, history and queue disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端（worker 必需）
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideSessionStore 提供会话快照存储
func ProvideSessionStore(client *redis.Client) *redis.SessionStore {
	if client == nil {
		return nil
	}
	return redis.NewSessionStore(client)
}

// ProvideSessionRepository 未启用 Redis 时返回 nil 接口
func ProvideSessionRepository(store *redis.SessionStore) repository.SessionRepository {
	if store == nil {
		return nil
	}
	return store
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(client *redis.Client, cfg *config.Config) *messaging.Producer {
	if client == nil {
		return nil
	}
	return messaging.NewProducer(client.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideJobPublisher 未启用 Redis 时返回 nil 接口
func ProvideJobPublisher(producer *messaging.Producer) handler.JobPublisher {
	if producer == nil {
		return nil
	}
	return producer
}

// ProvideRateLimiter 未启用 Redis 时返回 nil 接口
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideObservers 会话历史与生命周期事件
func ProvideObservers(cfg *config.Config, store *redis.SessionStore, producer *messaging.Producer) []forge.SessionObserver {
	var observers []forge.SessionObserver
	if store != nil {
		observers = append(observers, store)
	}
	if producer != nil && cfg.Messaging.RedisStream.PublishEvents {
		observers = append(observers, messaging.NewLifecyclePublisher(producer))
	}
	return observers
}

// ProvideOrchestrator 提供会话所有者
func ProvideOrchestrator(opts forge.Options, launcher forge.Launcher, observers []forge.SessionObserver) *forge.Orchestrator {
	return forge.NewOrchestrator(opts, launcher, observers...)
}

// ProvideGenerator 以接口形式暴露编排器
func ProvideGenerator(o *forge.Orchestrator) forge.Generator {
	return o
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(cfg *config.Config, o *forge.Orchestrator, client *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(o, client, cfg.App.Version)
}

// ProvideConsumer 提供生成任务消费者
func ProvideConsumer(client *redis.Client, cfg *config.Config) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	return messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamForgeJobs,
		Group:         messaging.ConsumerGroupForgeWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		BatchSize:     1,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
