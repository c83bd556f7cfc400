package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"volunteer-hub/internal/service"
	"volunteer-hub/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RosterHandler 活动花名册导出处理器
type RosterHandler struct {
	rosterSvc service.RosterService
}

// NewRosterHandler 创建 RosterHandler
func NewRosterHandler(rosterSvc service.RosterService) *RosterHandler {
	return &RosterHandler{rosterSvc: rosterSvc}
}

// Export 导出活动花名册（主办方）
// GET /api/v1/events/:id/roster.xlsx
func (h *RosterHandler) Export(c *gin.Context) {
	buf, filename, err := h.rosterSvc.ExportRoster(c.Request.Context(), SessionUser(c), c.Param("id"))
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *RosterHandler) handleRosterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLoginRequired):
		response.Unauthorized(c, 14001, "请先登录")
	case errors.Is(err, service.ErrRosterForbidden):
		response.Forbidden(c, 16103, "无权导出该活动花名册")
	case errors.Is(err, service.ErrEventNotFound):
		response.NotFound(c, 16101, "活动不存在")
	default:
		response.InternalError(c)
	}
}
