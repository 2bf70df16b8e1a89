// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"hephaestus-forge/internal/interfaces/http/dto"
	"hephaestus-forge/pkg/logger"
)

// respondError 应用错误按错误码响应，其余记录日志后返回 500
func respondError(c *gin.Context, err error, message string) {
	if dto.AppError(c, err) {
		return
	}
	logger.Error(c.Request.Context(), message, err)
	dto.InternalError(c, message)
}
