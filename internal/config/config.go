// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Generator     GeneratorConfig     `yaml:"generator" mapstructure:"generator"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// GeneratorConfig 外部生成脚本配置
type GeneratorConfig struct {
	// ProjectRoot 子进程工作目录
	ProjectRoot string `yaml:"project_root" mapstructure:"project_root"`
	// Interpreter 解释器命令，按 shell 分词规则拆分，如 "python -u"
	Interpreter string `yaml:"interpreter" mapstructure:"interpreter"`
	// Script 生成脚本（相对 ProjectRoot）
	Script string `yaml:"script" mapstructure:"script"`
	// ActivateScript 启动前 source 的环境脚本，为空则直接执行
	ActivateScript string `yaml:"activate_script" mapstructure:"activate_script"`
	// Shell 用于 source 环境脚本的 shell
	Shell string `yaml:"shell" mapstructure:"shell"`
	// ResultsDir 结果根目录（相对 ProjectRoot）
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"`
	// Env 附加环境变量，KEY=VALUE
	Env []string `yaml:"env" mapstructure:"env"`
	// RunTimeout 单次生成超时，0 表示不限制
	RunTimeout time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
	// OutputDrainGrace 子进程退出后继续读取输出的时长
	OutputDrainGrace time.Duration `yaml:"output_drain_grace" mapstructure:"output_drain_grace"`
	// ReadBufferSize 输出流单次读取的缓冲大小
	ReadBufferSize int `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	// SubscriberBuffer 每个事件订阅者的通道缓冲
	SubscriberBuffer int `yaml:"subscriber_buffer" mapstructure:"subscriber_buffer"`

	Markers MarkersConfig `yaml:"markers" mapstructure:"markers"`
}

// MarkersConfig 输出日志中的进度标记子串
type MarkersConfig struct {
	Sampler       string   `yaml:"sampler" mapstructure:"sampler"`
	MarchingCubes string   `yaml:"marching_cubes" mapstructure:"marching_cubes"`
	Refinement    string   `yaml:"refinement" mapstructure:"refinement"`
	MeshOutput    []string `yaml:"mesh_output" mapstructure:"mesh_output"`
	PathPrefix    string   `yaml:"path_prefix" mapstructure:"path_prefix"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	// SessionTTL 会话快照保留时长
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
	// HistoryLimit 保留的历史会话数量
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	// PublishEvents 是否将会话生命周期事件写入事件流
	PublishEvents bool `yaml:"publish_events" mapstructure:"publish_events"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Sentry  SentryConfig  `yaml:"sentry" mapstructure:"sentry"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SentryConfig Sentry 配置
type SentryConfig struct {
	DSN              string  `yaml:"dsn" mapstructure:"dsn"`
	TracesSampleRate float64 `yaml:"traces_sample_rate" mapstructure:"traces_sample_rate"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
	// MaxAge 预检结果缓存时长
	MaxAge time.Duration `yaml:"max_age" mapstructure:"max_age"`
}
