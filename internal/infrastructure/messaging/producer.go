package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/pkg/logger"
	pkgtracer "hephaestus-forge/pkg/tracer"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	if traceID := pkgtracer.TraceID(ctx); traceID != "" {
		msg.SetMetadata("trace_id", traceID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishJob 将生成请求排入任务流，返回任务 ID 与流消息 ID
func (p *Producer) PublishJob(ctx context.Context, req entity.GenerationRequest, requestID string) (string, string, error) {
	job := &GenerationJobMessage{
		JobID:       uuid.NewString(),
		Request:     req,
		RequestID:   requestID,
		SubmittedAt: time.Now(),
	}
	msg, err := NewMessage(job.JobID, TypeGenerationJob, job)
	if err != nil {
		return "", "", err
	}
	if requestID != "" {
		msg.SetMetadata("request_id", requestID)
	}

	streamID, err := p.Publish(ctx, StreamForgeJobs, msg)
	if err != nil {
		return "", "", err
	}
	return job.JobID, streamID, nil
}

// PublishSessionEvent 发布会话生命周期事件
func (p *Producer) PublishSessionEvent(ctx context.Context, msgType string, snap entity.SessionSnapshot) (string, error) {
	msg, err := NewMessage(uuid.NewString(), msgType, NewSessionEventMessage(snap))
	if err != nil {
		return "", err
	}
	msg.SetMetadata("session_id", snap.ID)
	return p.Publish(ctx, StreamForgeEvents, msg)
}

// LifecyclePublisher 将会话开始与结束写入事件流
type LifecyclePublisher struct {
	producer *Producer
}

// NewLifecyclePublisher 创建生命周期事件发布器
func NewLifecyclePublisher(producer *Producer) *LifecyclePublisher {
	return &LifecyclePublisher{producer: producer}
}

// SessionStarted 发布 session_started
func (l *LifecyclePublisher) SessionStarted(ctx context.Context, snap entity.SessionSnapshot) {
	if _, err := l.producer.PublishSessionEvent(ctx, TypeSessionStarted, snap); err != nil {
		logger.Error(ctx, "failed to publish session event", err, "session_id", snap.ID, "type", TypeSessionStarted)
	}
}

// SessionFinished 发布 session_finished
func (l *LifecyclePublisher) SessionFinished(ctx context.Context, snap entity.SessionSnapshot) {
	if _, err := l.producer.PublishSessionEvent(ctx, TypeSessionFinished, snap); err != nil {
		logger.Error(ctx, "failed to publish session event", err, "session_id", snap.ID, "type", TypeSessionFinished)
	}
}
