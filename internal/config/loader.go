// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// envPattern 匹配 ${VAR} 或 ${VAR:default}
// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	return LoadFrom(dir)
}

// LoadFrom 从指定目录加载配置，目录下 config.yaml 可以不存在
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), true); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnv(string(content))

	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，后续文件走 MergeConfig
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		// 未定义且无默认值时保留原样，便于识别
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "hephaestus-forge")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "127.0.0.1")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	// SSE 长连接，不设置写超时
	v.SetDefault("server.http.write_timeout", "0s")
	v.SetDefault("server.http.idle_timeout", "120s")

	// 生成脚本默认值
	v.SetDefault("generator.project_root", ".")
	v.SetDefault("generator.interpreter", "python -u")
	v.SetDefault("generator.script", "sample_stage1.py")
	v.SetDefault("generator.activate_script", "")
	v.SetDefault("generator.shell", "/bin/sh")
	v.SetDefault("generator.results_dir", "results/default")
	v.SetDefault("generator.run_timeout", "0s")
	v.SetDefault("generator.output_drain_grace", "500ms")
	v.SetDefault("generator.read_buffer_size", 4096)
	v.SetDefault("generator.subscriber_buffer", 256)
	v.SetDefault("generator.markers.sampler", "Sampler:")
	v.SetDefault("generator.markers.marching_cubes", "marching cube")
	v.SetDefault("generator.markers.refinement", "refinement")
	v.SetDefault("generator.markers.mesh_output", []string{"Generated mesh:", "Refined mesh:"})
	v.SetDefault("generator.markers.path_prefix", "results/")

	// Redis 默认值
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 20)
	v.SetDefault("cache.redis.min_idle_conns", 2)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.redis.session_ttl", "168h")
	v.SetDefault("cache.redis.history_limit", 50)

	// Redis Stream 默认值
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "1m")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)
	v.SetDefault("messaging.redis_stream.publish_events", true)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.sentry.dsn", "")
	v.SetDefault("observability.sentry.traces_sample_rate", 0.2)

	// 安全默认值
	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests_per_second", 5)
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("security.cors.max_age", "12h")
}
