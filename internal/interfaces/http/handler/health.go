// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hephaestus-forge/internal/infrastructure/persistence/redis"
)

// LoopStatus 会话所有者的运行状态
type LoopStatus interface {
	Done() <-chan struct{}
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	loop    LoopStatus
	redis   *redis.Client
	version string
}

// NewHealthHandler 创建健康检查处理器；redisClient 为 nil 表示未启用 Redis
func NewHealthHandler(loop LoopStatus, redisClient *redis.Client, version string) *HealthHandler {
	return &HealthHandler{
		loop:    loop,
		redis:   redisClient,
		version: version,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 编排循环必须在运行；Redis 启用时必须可达
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{
		"orchestrator": {Status: "unknown"},
		"redis":        {Status: "disabled"},
	}
	ready := true

	if h.loop == nil {
		checks["orchestrator"].Status = "missing"
		ready = false
	} else {
		select {
		case <-h.loop.Done():
			checks["orchestrator"].Status = "stopped"
			ready = false
		default:
			checks["orchestrator"].Status = "ok"
		}
	}

	if h.redis != nil {
		start := time.Now()
		err := h.redis.HealthCheck(ctx)
		checks["redis"].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks["redis"].Status = "error"
			checks["redis"].Error = err.Error()
			ready = false
		} else {
			checks["redis"].Status = "ok"
		}
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}
