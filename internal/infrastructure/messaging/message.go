// Package messaging 提供基于 Redis Streams 的任务队列与会话事件流
package messaging

import (
	"encoding/json"
	"time"

	"hephaestus-forge/internal/domain/entity"
)

// Message 消息结构
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        id,
		Type:      msgType,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

const (
	StreamForgeJobs   Stream = "stream:forge:jobs"
	StreamForgeEvents Stream = "stream:forge:events"
)

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组定义
type ConsumerGroup string

const (
	ConsumerGroupForgeWorker ConsumerGroup = "cg-forge-worker"
)

// 消息类型
const (
	TypeGenerationJob   = "generation_job"
	TypeSessionStarted  = "session_started"
	TypeSessionFinished = "session_finished"
)

// GenerationJobMessage 排队的生成任务
type GenerationJobMessage struct {
	JobID       string                   `json:"job_id"`
	Request     entity.GenerationRequest `json:"request"`
	RequestID   string                   `json:"request_id,omitempty"`
	SubmittedAt time.Time                `json:"submitted_at"`
}

// SessionEventMessage 会话生命周期事件
type SessionEventMessage struct {
	SessionID   string               `json:"session_id"`
	Status      entity.SessionStatus `json:"status"`
	Command     string               `json:"command"`
	Progress    float64              `json:"progress"`
	ExitCode    *int                 `json:"exit_code,omitempty"`
	Error       string               `json:"error,omitempty"`
	OutputFiles []string             `json:"output_files"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}

// NewSessionEventMessage 由快照构造事件（不含日志全文）
func NewSessionEventMessage(snap entity.SessionSnapshot) *SessionEventMessage {
	return &SessionEventMessage{
		SessionID:   snap.ID,
		Status:      snap.Status,
		Command:     snap.Command,
		Progress:    snap.Progress,
		ExitCode:    snap.ExitCode,
		Error:       snap.Error,
		OutputFiles: snap.OutputFiles,
		StartedAt:   snap.StartedAt,
		FinishedAt:  snap.FinishedAt,
	}
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff 计算退避时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			backoff = c.Max
			break
		}
	}
	return backoff
}
