// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由；limit 只作用于提交类接口
func RegisterV1Routes(v1 *gin.RouterGroup, h *RouterHandlers, limit gin.HandlerFunc) {
	v1.GET("/form", h.Form.GetForm)

	// 生成提交
	generations := v1.Group("/generations")
	{
		generations.POST("", limit, h.Generation.Submit)
		generations.POST("/queue", limit, h.Generation.Enqueue)
		generations.POST("/preview", h.Generation.Preview)
	}

	// 当前会话
	session := v1.Group("/session")
	{
		session.GET("", h.Session.GetCurrent)
		session.DELETE("", h.Session.Cancel)
		session.GET("/stream", h.Stream.StreamSession) // SSE
		session.GET("/files", h.Session.GetFile)
	}

	// 历史会话
	sessions := v1.Group("/sessions")
	{
		sessions.GET("", h.Session.ListSessions)
		sessions.GET("/:id", h.Session.GetSession)
	}
}
