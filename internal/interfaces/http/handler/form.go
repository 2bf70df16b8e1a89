package handler

import (
	"github.com/gin-gonic/gin"

	"hephaestus-forge/internal/interfaces/http/dto"
)

// FormHandler 参数表单处理器
type FormHandler struct {
	form *dto.FormResponse
}

// NewFormHandler 创建参数表单处理器
func NewFormHandler() *FormHandler {
	return &FormHandler{form: dto.NewFormResponse()}
}

// GetForm 获取参数表单描述
// @Summary 获取参数表单
// @Description 字段顺序、取值范围、默认值与说明
// @Tags Form
// @Produce json
// @Success 200 {object} dto.Response[dto.FormResponse]
// @Router /v1/form [get]
func (h *FormHandler) GetForm(c *gin.Context) {
	dto.Success(c, h.form)
}
