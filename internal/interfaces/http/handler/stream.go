package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/pkg/logger"
)

const streamKeepAlive = 15 * time.Second

// StreamHandler 会话事件流处理器
type StreamHandler struct {
	gen forge.Generator
}

// NewStreamHandler 创建会话事件流处理器
func NewStreamHandler(gen forge.Generator) *StreamHandler {
	return &StreamHandler{gen: gen}
}

// StreamSession 通过 SSE 推送会话事件
// @Summary 会话事件流
// @Description 首个事件为 snapshot，随后依次推送 log、state、file、done
// @Tags Sessions
// @Produce text/event-stream
// @Param until_done query bool false "收到 done 后关闭连接"
// @Success 200 {string} string "SSE stream"
// @Router /v1/session/stream [get]
func (h *StreamHandler) StreamSession(c *gin.Context) {
	ctx := c.Request.Context()
	events, unsubscribe, err := h.gen.Subscribe(ctx)
	if err != nil {
		respondError(c, err, "failed to subscribe session events")
		return
	}
	defer unsubscribe()

	untilDone := c.Query("until_done") == "true"

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				// 消费过慢被移除，客户端重连后拿到最新快照
				logger.Warn(ctx, "session stream subscriber dropped")
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return !(untilDone && ev.Type == forge.EventDone)
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().Unix()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
