// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionStatusIdle      SessionStatus = "idle"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Terminal 是否为终态
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// 固定的步骤文案
const (
	StepInitializing = "Initializing..."
	StepGenerating   = "Generating 3D model..."
	StepExtracting   = "Extracting mesh..."
	StepRefining     = "Refining mesh..."
	StepComplete     = "Complete!"
)

// GenerationSession 单次生成的可变状态
//
// 只能由会话所有者（orchestrator 的事件循环）修改；其他读者使用 Snapshot。
type GenerationSession struct {
	ID          string
	Request     GenerationRequest
	Command     string
	Status      SessionStatus
	Progress    float64
	Step        *string
	Detail      *string
	OutputFiles []string
	ExitCode    *int
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time

	transcript strings.Builder
}

// NewGenerationSession 创建运行中的会话，首行记录命令
func NewGenerationSession(id string, req GenerationRequest, command string) *GenerationSession {
	s := &GenerationSession{
		ID:          id,
		Request:     req,
		Command:     command,
		Status:      SessionStatusRunning,
		Progress:    0,
		OutputFiles: []string{},
		StartedAt:   time.Now(),
	}
	s.SetStep(StepInitializing)
	s.AppendTranscript("Command: " + command + "\n\n")
	return s
}

// InFlight 是否仍在运行
func (s *GenerationSession) InFlight() bool {
	return s != nil && s.Status == SessionStatusRunning
}

// AppendTranscript 追加日志文本
func (s *GenerationSession) AppendTranscript(text string) {
	s.transcript.WriteString(text)
}

// Transcript 返回当前日志全文
func (s *GenerationSession) Transcript() string {
	return s.transcript.String()
}

// SetStep 设置当前步骤
func (s *GenerationSession) SetStep(step string) {
	s.Step = &step
}

// SetDetail 设置步骤详情
func (s *GenerationSession) SetDetail(detail string) {
	s.Detail = &detail
}

// AdvanceProgress 推进进度，进度只增不减，返回是否发生变化
func (s *GenerationSession) AdvanceProgress(p float64) bool {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	if p <= s.Progress {
		return false
	}
	s.Progress = p
	return true
}

// AddOutputFile 追加输出文件（不去重）
func (s *GenerationSession) AddOutputFile(path string) {
	s.OutputFiles = append(s.OutputFiles, path)
}

// Complete 子进程正常退出
func (s *GenerationSession) Complete(exitCode int) {
	now := time.Now()
	s.Status = SessionStatusCompleted
	s.Progress = 1.0
	s.SetStep(StepComplete)
	s.ExitCode = &exitCode
	s.FinishedAt = &now
}

// Fail 启动失败或被中止；进度保持不变
func (s *GenerationSession) Fail(err error) {
	now := time.Now()
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	s.Status = SessionStatusFailed
	s.Error = msg
	s.AppendTranscript(fmt.Sprintf("\nError: %s\n", msg))
	s.FinishedAt = &now
}

// Duration 运行时长
func (s *GenerationSession) Duration() time.Duration {
	if s.FinishedAt != nil {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// Snapshot 返回只读副本
func (s *GenerationSession) Snapshot() SessionSnapshot {
	if s == nil {
		return IdleSnapshot()
	}
	snap := SessionSnapshot{
		ID:          s.ID,
		Status:      s.Status,
		InFlight:    s.InFlight(),
		Request:     s.Request,
		Command:     s.Command,
		Progress:    s.Progress,
		Step:        copyString(s.Step),
		Detail:      copyString(s.Detail),
		Transcript:  s.transcript.String(),
		OutputFiles: append([]string(nil), s.OutputFiles...),
		Error:       s.Error,
		StartedAt:   s.StartedAt,
	}
	if snap.OutputFiles == nil {
		snap.OutputFiles = []string{}
	}
	if s.ExitCode != nil {
		code := *s.ExitCode
		snap.ExitCode = &code
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		snap.FinishedAt = &t
	}
	return snap
}

// SessionSnapshot 会话的不可变视图
type SessionSnapshot struct {
	ID          string            `json:"id,omitempty"`
	Status      SessionStatus     `json:"status"`
	InFlight    bool              `json:"in_flight"`
	Request     GenerationRequest `json:"request"`
	Command     string            `json:"command,omitempty"`
	Progress    float64           `json:"progress"`
	Step        *string           `json:"step,omitempty"`
	Detail      *string           `json:"detail,omitempty"`
	Transcript  string            `json:"transcript"`
	OutputFiles []string          `json:"output_files"`
	ExitCode    *int              `json:"exit_code,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

// IdleSnapshot 尚未提交任何生成时的视图
func IdleSnapshot() SessionSnapshot {
	return SessionSnapshot{
		Status:      SessionStatusIdle,
		OutputFiles: []string{},
	}
}

// HasOutputFile 检查路径是否为本次会话记录的输出
func (s SessionSnapshot) HasOutputFile(path string) bool {
	for _, f := range s.OutputFiles {
		if f == path {
			return true
		}
	}
	return false
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
