// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hephaestus-forge/pkg/errors"
)

// Response 统一响应结构
type Response[T any] struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Data      T         `json:"data,omitempty"`
	Meta      *PageMeta `json:"meta,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ErrorDetail 错误详情，ErrorCode 取自 pkg/errors 错误码
type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code      int          `json:"code"`
	Message   string       `json:"message"`
	Error     *ErrorDetail `json:"error,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	TraceID   string       `json:"trace_id,omitempty"`
}

func respond[T any](c *gin.Context, status int, message string, data T, meta *PageMeta) {
	c.JSON(status, Response[T]{
		Code:      status,
		Message:   message,
		Data:      data,
		Meta:      meta,
		RequestID: c.GetString("request_id"),
		TraceID:   c.GetString("trace_id"),
	})
}

func respondError(c *gin.Context, status int, message string, detail *ErrorDetail) {
	c.JSON(status, ErrorResponse{
		Code:      status,
		Message:   message,
		Error:     detail,
		RequestID: c.GetString("request_id"),
		TraceID:   c.GetString("trace_id"),
	})
}

// Success 返回成功响应
func Success[T any](c *gin.Context, data T) {
	respond(c, http.StatusOK, "success", data, nil)
}

// SuccessWithPage 返回带分页的成功响应
func SuccessWithPage[T any](c *gin.Context, data T, meta *PageMeta) {
	respond(c, http.StatusOK, "success", data, meta)
}

// Accepted 生成已开始或已入队 (202)
func Accepted[T any](c *gin.Context, data T) {
	respond(c, http.StatusAccepted, "accepted", data, nil)
}

// AppError 将应用错误写为统一错误响应，返回是否已处理
func AppError(c *gin.Context, err error) bool {
	if !errors.IsAppError(err) {
		return false
	}
	appErr := errors.AsAppError(err)
	respondError(c, appErr.HTTPStatus, appErr.Message, &ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
	return true
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, message, nil)
}

// InternalError 返回 500 错误
func InternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, message, nil)
}

// ServiceUnavailable 返回 503 错误（Redis 未启用时的队列与历史接口）
func ServiceUnavailable(c *gin.Context, message string) {
	respondError(c, http.StatusServiceUnavailable, message, nil)
}

// NewPageMeta 创建分页元数据
func NewPageMeta(page, pageSize, total int) *PageMeta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return &PageMeta{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}
