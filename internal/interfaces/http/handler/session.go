package handler

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/domain/repository"
	"hephaestus-forge/internal/interfaces/http/dto"
	"hephaestus-forge/pkg/errors"
	"hephaestus-forge/pkg/logger"
)

// SessionHandler 会话查询与控制处理器
type SessionHandler struct {
	gen         forge.Generator
	sessionRepo repository.SessionRepository
	projectRoot string
}

// NewSessionHandler 创建会话处理器；sessionRepo 为 nil 时只能查询当前会话
func NewSessionHandler(gen forge.Generator, sessionRepo repository.SessionRepository, opts forge.Options) *SessionHandler {
	return &SessionHandler{
		gen:         gen,
		sessionRepo: sessionRepo,
		projectRoot: opts.ProjectRoot,
	}
}

// GetCurrent 获取当前会话快照
// @Summary 当前会话
// @Tags Sessions
// @Produce json
// @Param transcript query bool false "是否包含日志全文，默认 true"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Router /v1/session [get]
func (h *SessionHandler) GetCurrent(c *gin.Context) {
	snap, err := h.gen.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to get session")
		return
	}
	dto.Success(c, dto.ToSessionResponse(snap, c.DefaultQuery("transcript", "true") != "false"))
}

// Cancel 中止正在运行的生成
// @Summary 中止生成
// @Tags Sessions
// @Produce json
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse "没有运行中的生成"
// @Router /v1/session [delete]
func (h *SessionHandler) Cancel(c *gin.Context) {
	snap, err := h.gen.Cancel(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to cancel generation")
		return
	}
	dto.Success(c, dto.ToSessionResponse(snap, false))
}

// GetSession 按 ID 获取会话；当前会话直接返回，历史会话从仓储读取
// @Summary 获取会话
// @Tags Sessions
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindSessionID(c)

	current, err := h.gen.Snapshot(ctx)
	if err != nil {
		respondError(c, err, "failed to get session")
		return
	}
	if current.ID == id {
		dto.Success(c, dto.ToSessionResponse(current, true))
		return
	}

	if h.sessionRepo == nil {
		respondError(c, errors.ErrSessionNotFound, "session not found")
		return
	}
	snap, err := h.sessionRepo.GetByID(ctx, id)
	if err != nil {
		respondError(c, err, "failed to get session")
		return
	}
	if snap == nil {
		respondError(c, errors.ErrSessionNotFound, "session not found")
		return
	}
	dto.Success(c, dto.ToSessionResponse(*snap, true))
}

// ListSessions 列出最近的会话
// @Summary 会话列表
// @Tags Sessions
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.SessionListResponse]
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	if h.sessionRepo == nil {
		respondError(c, errors.ErrServiceUnavailable.WithDetail("session history is not configured"), "session history is not configured")
		return
	}

	page := dto.BindPage(c)
	result, err := h.sessionRepo.ListRecent(c.Request.Context(), page.Pagination())
	if err != nil {
		respondError(c, err, "failed to list sessions")
		return
	}
	resp, meta := dto.ToSessionListResponse(result)
	dto.SuccessWithPage(c, resp, meta)
}

// GetFile 下载当前会话的输出文件
//
// 只提供当前会话记录过的路径；相对路径相对项目根目录解析。
// @Summary 下载输出文件
// @Tags Sessions
// @Produce octet-stream
// @Param path query string true "输出文件路径"
// @Param download query bool false "以附件形式下载"
// @Success 200 {file} file
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/session/files [get]
func (h *SessionHandler) GetFile(c *gin.Context) {
	ctx := c.Request.Context()
	path := c.Query("path")
	if path == "" {
		dto.BadRequest(c, "path is required")
		return
	}

	snap, err := h.gen.Snapshot(ctx)
	if err != nil {
		respondError(c, err, "failed to get session")
		return
	}
	if !snap.HasOutputFile(path) {
		respondError(c, errors.ErrFileNotFound.WithDetail(path), "file not found")
		return
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(h.projectRoot, full)
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		logger.Warn(ctx, "output file unavailable", "path", full)
		respondError(c, errors.ErrFileNotFound.WithDetail(path), "file not found")
		return
	}

	if c.Query("download") == "true" {
		c.FileAttachment(full, filepath.Base(full))
		return
	}
	c.File(full)
}
