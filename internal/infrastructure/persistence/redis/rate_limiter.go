package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// RateLimiter 滑动窗口限流器
type RateLimiter struct {
	client *Client
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow 检查是否允许请求（滑动窗口算法），同时返回窗口内剩余配额
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	now := time.Now().UnixMilli()
	windowStart := now - window.Milliseconds()

	pipe := l.client.rdb.Pipeline()
	// 移除窗口外的请求
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return false, 0, err
	}

	count := int(countCmd.Val())
	span.SetAttributes(attribute.Int("ratelimit.current_count", count))

	if count >= limit {
		span.SetAttributes(attribute.Bool("ratelimit.allowed", false))
		return false, 0, nil
	}

	// 同一毫秒内的多个请求需要不同的成员
	pipe = l.client.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d-%s", now, uuid.NewString()),
	})
	pipe.Expire(ctx, key, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return false, 0, err
	}

	span.SetAttributes(attribute.Bool("ratelimit.allowed", true))
	return true, limit - count - 1, nil
}

// BuildRateLimitKey 构建限流键
func BuildRateLimitKey(clientID, endpoint string) string {
	return fmt.Sprintf("ratelimit:%s:%s", clientID, endpoint)
}
