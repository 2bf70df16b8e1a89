package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/internal/interfaces/http/dto"
	"hephaestus-forge/pkg/errors"
	"hephaestus-forge/pkg/logger"
)

// JobPublisher 将生成请求排入任务队列
type JobPublisher interface {
	PublishJob(ctx context.Context, req entity.GenerationRequest, requestID string) (string, string, error)
}

// GenerationHandler 生成提交处理器
type GenerationHandler struct {
	gen       forge.Generator
	opts      forge.Options
	publisher JobPublisher
}

// NewGenerationHandler 创建生成提交处理器；publisher 为 nil 时队列接口不可用
func NewGenerationHandler(gen forge.Generator, opts forge.Options, publisher JobPublisher) *GenerationHandler {
	return &GenerationHandler{
		gen:       gen,
		opts:      opts,
		publisher: publisher,
	}
}

// Submit 提交生成
// @Summary 提交生成
// @Description 未提供的字段使用表单默认值；已有生成在运行时返回 409
// @Tags Generations
// @Accept json
// @Produce json
// @Param body body entity.GenerationRequest false "生成参数"
// @Success 202 {object} dto.Response[dto.SessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/generations [post]
func (h *GenerationHandler) Submit(c *gin.Context) {
	req, err := dto.BindGenerationRequest(c)
	if err != nil {
		respondError(c, err, "failed to bind request")
		return
	}

	snap, err := h.gen.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "failed to submit generation")
		return
	}
	dto.Accepted(c, dto.ToSessionResponse(snap, true))
}

// Preview 预览将要执行的命令
// @Summary 预览命令
// @Tags Generations
// @Accept json
// @Produce json
// @Param body body entity.GenerationRequest false "生成参数"
// @Success 200 {object} dto.Response[dto.CommandPreviewResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/generations/preview [post]
func (h *GenerationHandler) Preview(c *gin.Context) {
	req, err := dto.BindGenerationRequest(c)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		respondError(c, err, "invalid generation request")
		return
	}

	dto.Success(c, &dto.CommandPreviewResponse{
		Argv:    forge.BuildArgs(req, h.opts),
		Display: forge.Command(req, h.opts),
	})
}

// Enqueue 将生成请求排入任务流，由 worker 串行执行
// @Summary 排队生成
// @Tags Generations
// @Accept json
// @Produce json
// @Param body body entity.GenerationRequest false "生成参数"
// @Success 202 {object} dto.Response[dto.QueuedGenerationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/generations/queue [post]
func (h *GenerationHandler) Enqueue(c *gin.Context) {
	ctx := c.Request.Context()
	if h.publisher == nil {
		respondError(c, errors.ErrServiceUnavailable.WithDetail("job queue is not configured"), "job queue is not configured")
		return
	}

	req, err := dto.BindGenerationRequest(c)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		respondError(c, err, "invalid generation request")
		return
	}

	jobID, messageID, err := h.publisher.PublishJob(ctx, req, c.GetString("request_id"))
	if err != nil {
		logger.Error(ctx, "failed to enqueue generation", err)
		dto.ServiceUnavailable(c, "failed to enqueue generation")
		return
	}

	logger.Info(ctx, "generation enqueued", "job_id", jobID, "message_id", messageID)
	dto.Accepted(c, &dto.QueuedGenerationResponse{
		JobID:     jobID,
		MessageID: messageID,
	})
}
