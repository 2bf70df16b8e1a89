package dto

import (
	"io"

	"github.com/gin-gonic/gin"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/internal/domain/repository"
	"hephaestus-forge/pkg/errors"
)

// BindGenerationRequest 以表单默认值为底绑定请求体，缺省字段保持默认
//
// 空请求体等价于直接提交默认表单。
func BindGenerationRequest(c *gin.Context) (entity.GenerationRequest, error) {
	req := entity.DefaultGenerationRequest()
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, errors.Wrap(err, errors.CodeInvalidParam, "invalid request body").WithDetail(err.Error())
	}
	return req, nil
}

// SessionResponse 会话响应
type SessionResponse struct {
	entity.SessionSnapshot
}

// ToSessionResponse 转换快照；includeTranscript 为 false 时省略日志全文
func ToSessionResponse(snap entity.SessionSnapshot, includeTranscript bool) *SessionResponse {
	if !includeTranscript {
		snap.Transcript = ""
	}
	return &SessionResponse{SessionSnapshot: snap}
}

// SessionListResponse 会话列表响应
type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
}

// ToSessionListResponse 转换分页结果，列表中不包含日志全文
func ToSessionListResponse(result *repository.PagedResult[*entity.SessionSnapshot]) (*SessionListResponse, *PageMeta) {
	resp := &SessionListResponse{
		Sessions: make([]*SessionResponse, 0, len(result.Items)),
	}
	for _, snap := range result.Items {
		if snap == nil {
			continue
		}
		resp.Sessions = append(resp.Sessions, ToSessionResponse(*snap, false))
	}
	return resp, NewPageMeta(result.Page, result.PageSize, int(result.Total))
}

// QueuedGenerationResponse 入队响应
type QueuedGenerationResponse struct {
	JobID     string `json:"job_id"`
	MessageID string `json:"message_id"`
}

// FormResponse 参数表单描述
type FormResponse struct {
	Fields   []forge.FieldSpec        `json:"fields"`
	Defaults entity.GenerationRequest `json:"defaults"`
}

// NewFormResponse 构建表单描述
func NewFormResponse() *FormResponse {
	return &FormResponse{
		Fields:   forge.Form(),
		Defaults: entity.DefaultGenerationRequest(),
	}
}

// CommandPreviewResponse 命令预览
type CommandPreviewResponse struct {
	Argv    []string `json:"argv"`
	Display string   `json:"display"`
}
