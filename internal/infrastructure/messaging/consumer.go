package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hephaestus-forge/pkg/logger"
	"hephaestus-forge/pkg/metrics"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer 消息消费者
//
// 失败的消息留在 PEL 中按退避重新投递，超过重试上限后移入死信流。
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	batchSize     int64
	backoff       BackoffConfig

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	// BatchSize 单次读取条数；生成任务逐条处理
	BatchSize int
	Backoff   BackoffConfig
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		reclaimIdle:   maxDuration(5*time.Minute, cfg.Backoff.Max*2),
		retryLimit:    cfg.RetryLimit,
		batchSize:     int64(cfg.BatchSize),
		backoff:       cfg.Backoff,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 创建消费者组并在后台开始消费
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	// 确保消费者组存在
	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.run(ctx)
	return nil
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

// Done 消费循环退出后关闭
func (c *Consumer) Done() <-chan struct{} {
	return c.doneCh
}

// run 消费循环
func (c *Consumer) run(ctx context.Context) {
	defer close(c.doneCh)

	log := logger.FromContext(ctx)
	log.Info("consumer started",
		"stream", c.stream,
		"group", c.group,
		"consumer", c.consumerName,
	)

	lastClaim := time.Now().Add(-c.claimInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("consumer stopped due to context cancellation")
			return
		case <-c.stopCh:
			log.Info("consumer stopped")
			return
		default:
		}

		c.processDuePending(ctx)
		if time.Since(lastClaim) >= c.claimInterval {
			c.reclaimStale(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    c.batchSize,
			Block:    c.blockTimeout,
		}).Result()

		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.Error("failed to read from stream", "error", err)
			c.sleep(ctx, time.Second)
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-c.stopCh:
	}
}

// decode 解析流消息；格式错误的消息直接确认丢弃
func (c *Consumer) decode(ctx context.Context, xmsg redis.XMessage) (*Message, bool) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		logger.FromContext(ctx).Error("invalid message format", "message_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "invalid").Inc()
		return nil, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		logger.FromContext(ctx).Error("failed to unmarshal message", "error", err, "message_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "invalid").Inc()
		return nil, false
	}
	return &msg, true
}

// processMessage 处理单条消息
func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, ok := c.decode(ctx, xmsg)
	if !ok {
		return
	}

	ctx = logger.WithContext(ctx, logger.MessageIDKey, msg.ID)
	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}

	log := logger.FromContext(ctx)

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
	)

	c.mu.RLock()
	handler, exists := c.handlers[msg.Type]
	c.mu.RUnlock()

	if !exists {
		log.Warn("no handler for message type", "type", msg.Type)
		c.ack(ctx, xmsg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "unhandled").Inc()
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		log.Error("handler failed", "error", err)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "failed").Inc()
		c.handleFailure(ctx, xmsg, msg, err)
		return
	}

	c.ack(ctx, xmsg.ID)
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "success").Inc()
}

// ack 确认消息
func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "error", err, "message_id", id)
	}
}

// handleFailure 未超过重试上限时留在 PEL 等待退避后重新投递
func (c *Consumer) handleFailure(ctx context.Context, xmsg redis.XMessage, msg *Message, err error) {
	log := logger.FromContext(ctx)

	retryCount := c.getRetryCount(ctx, xmsg.ID)
	if retryCount >= c.retryLimit {
		log.Warn("message moved to DLQ after max retries",
			"retry_count", retryCount,
		)
		c.moveToDLQ(ctx, msg, err)
		c.ack(ctx, xmsg.ID)
		return
	}
	log.Info("message left pending for retry", "retry_count", retryCount)
}

// getRetryCount 通过 XPENDING 获取消息的投递次数
func (c *Consumer) getRetryCount(ctx context.Context, messageID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()

	if err != nil || len(pending) == 0 {
		return 0
	}

	return int(pending[0].RetryCount)
}

// moveToDLQ 移入死信队列
func (c *Consumer) moveToDLQ(ctx context.Context, msg *Message, err error) {
	dlqStream := c.stream.DLQStream()

	dlqMsg := map[string]interface{}{
		"original_stream": string(c.stream),
		"data":            msg,
		"error":           err.Error(),
		"failed_at":       time.Now().Unix(),
	}

	data, _ := json.Marshal(dlqMsg)
	if addErr := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: map[string]interface{}{"data": string(data)},
	}).Err(); addErr != nil {
		logger.FromContext(ctx).Error("failed to write DLQ", "error", addErr, "stream", dlqStream)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "dlq").Inc()
}

// claim 认领待处理消息；exhausted 为 true 时直接转入死信流，否则重新处理
func (c *Consumer) claim(ctx context.Context, id string, minIdle time.Duration, exhausted bool) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
	if err != nil {
		logger.FromContext(ctx).Error("failed to claim pending message", "error", err, "message_id", id)
		return
	}

	for _, xmsg := range claimed {
		if !exhausted {
			c.processMessage(ctx, xmsg)
			continue
		}
		msg, ok := c.decode(ctx, xmsg)
		if !ok {
			continue
		}
		c.moveToDLQ(ctx, msg, fmt.Errorf("message exceeded max retries"))
		c.ack(ctx, xmsg.ID)
	}
}

func (c *Consumer) pending(ctx context.Context, consumer string) []redis.XPendingExt {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: consumer,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			logger.FromContext(ctx).Error("failed to query pending messages", "error", err)
		}
		return nil
	}
	return pending
}

// processDuePending 重新投递本消费者名下已过退避时间的消息
func (c *Consumer) processDuePending(ctx context.Context) {
	for _, p := range c.pending(ctx, c.consumerName) {
		retryCount := int(p.RetryCount)
		if retryCount >= c.retryLimit {
			c.claim(ctx, p.ID, 0, true)
			continue
		}

		backoff := c.backoff.CalculateBackoff(retryCount)
		if p.Idle < backoff {
			continue
		}
		c.claim(ctx, p.ID, backoff, false)
	}
}

// reclaimStale 接管其他消费者长时间未确认的消息
func (c *Consumer) reclaimStale(ctx context.Context) {
	if c.reclaimIdle <= 0 {
		return
	}

	for _, p := range c.pending(ctx, "") {
		if p.Consumer == c.consumerName || p.Idle < c.reclaimIdle {
			continue
		}
		c.claim(ctx, p.ID, c.reclaimIdle, int(p.RetryCount) >= c.retryLimit)
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// MonitorDLQ 监控死信队列
func (c *Consumer) MonitorDLQ(ctx context.Context, interval time.Duration, alertThreshold int64) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			dlqStream := c.stream.DLQStream()
			n, err := c.client.XLen(ctx, dlqStream).Result()
			if err != nil {
				continue
			}

			if n > alertThreshold {
				log.Warn("DLQ has pending messages",
					"stream", dlqStream,
					"count", n,
				)
			}
		}
	}
}
