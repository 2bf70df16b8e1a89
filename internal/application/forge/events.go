package forge

import (
	"context"

	"hephaestus-forge/internal/domain/entity"
)

// EventType 会话事件类型
type EventType string

const (
	// EventSnapshot 订阅时或新会话开始时的完整快照
	EventSnapshot EventType = "snapshot"
	// EventLog 新的日志文本
	EventLog EventType = "log"
	// EventState 步骤或进度变化
	EventState EventType = "state"
	// EventFile 发现输出文件
	EventFile EventType = "file"
	// EventDone 会话进入终态
	EventDone EventType = "done"
)

// Event 推送给订阅者的会话事件
type Event struct {
	Type      EventType               `json:"type"`
	SessionID string                  `json:"session_id,omitempty"`
	Text      string                  `json:"text,omitempty"`
	Progress  float64                 `json:"progress"`
	Step      string                  `json:"step,omitempty"`
	Detail    string                  `json:"detail,omitempty"`
	File      string                  `json:"file,omitempty"`
	Snapshot  *entity.SessionSnapshot `json:"snapshot,omitempty"`
}

// SessionObserver 接收会话开始与结束通知
//
// 回调在独立 goroutine 中执行，不占用会话所有者。
type SessionObserver interface {
	SessionStarted(ctx context.Context, snap entity.SessionSnapshot)
	SessionFinished(ctx context.Context, snap entity.SessionSnapshot)
}

func stateEvent(s *entity.GenerationSession) Event {
	ev := Event{Type: EventState, SessionID: s.ID, Progress: s.Progress}
	if s.Step != nil {
		ev.Step = *s.Step
	}
	if s.Detail != nil {
		ev.Detail = *s.Detail
	}
	return ev
}

func snapshotEvent(t EventType, snap entity.SessionSnapshot) Event {
	ev := Event{Type: t, SessionID: snap.ID, Progress: snap.Progress, Snapshot: &snap}
	if snap.Step != nil {
		ev.Step = *snap.Step
	}
	return ev
}
