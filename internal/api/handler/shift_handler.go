package handler

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"volunteer-hub/internal/api/middleware"
	"volunteer-hub/internal/dto"
	"volunteer-hub/internal/service"
	pkgerrors "volunteer-hub/pkg/errors"
	"volunteer-hub/pkg/response"
)

// myShiftsPath 志愿者班次列表页，确认链接处理完成后重定向到此
const myShiftsPath = "/volunteer/shifts"

// msgGenericFailure 无法归类的失败提示
const msgGenericFailure = "Something went wrong with your shift update."

// ShiftHandler 志愿者班次模块 HTTP 处理器
type ShiftHandler struct {
	actionSvc   service.ShiftActionService
	listingSvc  service.ShiftListingService
	calendarSvc service.CalendarService
}

// NewShiftHandler 创建 ShiftHandler
func NewShiftHandler(actionSvc service.ShiftActionService, listingSvc service.ShiftListingService, calendarSvc service.CalendarService) *ShiftHandler {
	return &ShiftHandler{actionSvc: actionSvc, listingSvc: listingSvc, calendarSvc: calendarSvc}
}

// Confirm 确认班次
// POST /api/v1/shifts/:id/confirm
func (h *ShiftHandler) Confirm(c *gin.Context) {
	result, err := h.actionSvc.Confirm(c.Request.Context(), SessionUser(c), c.Param("id"))
	h.respond(c, result, err)
}

// Cancel 取消班次
// POST /api/v1/shifts/:id/cancel
func (h *ShiftHandler) Cancel(c *gin.Context) {
	result, err := h.actionSvc.Cancel(c.Request.Context(), SessionUser(c), c.Param("id"))
	h.respond(c, result, err)
}

// Uncancel 恢复已取消的班次
// POST /api/v1/shifts/:id/uncancel
func (h *ShiftHandler) Uncancel(c *gin.Context) {
	result, err := h.actionSvc.Uncancel(c.Request.Context(), SessionUser(c), c.Param("id"))
	h.respond(c, result, err)
}

// Reschedule 改签到同一活动的其他班次
// POST /api/v1/shifts/:id/reschedule
func (h *ShiftHandler) Reschedule(c *gin.Context) {
	var req dto.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		if middleware.IsBodyTooLarge(err) {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			return
		}
		response.BadRequest(c, 14000, "参数校验失败")
		return
	}

	result, err := h.actionSvc.Reschedule(c.Request.Context(), SessionUser(c), c.Param("id"), req.NewShiftID)
	h.respond(c, result, err)
}

// ListMine 我的班次列表
// GET /api/v1/shifts/my?notice=&error=&shift=
func (h *ShiftHandler) ListMine(c *gin.Context) {
	var req dto.MyShiftsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 14000, "参数校验失败")
		return
	}

	resp, err := h.listingSvc.ListMyShifts(c.Request.Context(), SessionUser(c), &req)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, resp)
}

// Calendar 导出我的班次日历
// GET /api/v1/shifts/my/calendar.ics
func (h *ShiftHandler) Calendar(c *gin.Context) {
	ics, err := h.calendarSvc.MyShiftsICS(c.Request.Context(), SessionUser(c))
	if err != nil {
		if errors.Is(err, service.ErrLoginRequired) {
			response.Unauthorized(c, 14001, "请先登录")
			return
		}
		response.InternalError(c)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=my-shifts.ics")
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(ics))
}

// ConfirmLink 邮件中的一键确认链接，处理后 303 重定向回班次列表
// GET /volunteer/shifts/:id/confirm
func (h *ShiftHandler) ConfirmLink(c *gin.Context) {
	assignmentID := c.Param("id")
	if assignmentID == "" {
		c.Redirect(http.StatusSeeOther, myShiftsPath+"?notice=not_found")
		return
	}

	result, err := h.actionSvc.Confirm(c.Request.Context(), SessionUser(c), assignmentID)
	if err != nil {
		result = &dto.ShiftActionResult{AssignmentID: assignmentID, Reason: "error", Message: msgGenericFailure}
	}

	c.Redirect(http.StatusSeeOther, myShiftsPath+"?"+buildRedirectParams(result, "confirm_success"))
}

// buildRedirectParams 把操作结果编码为列表页的 notice/error/shift 查询参数
func buildRedirectParams(result *dto.ShiftActionResult, successNotice string) string {
	params := url.Values{}
	if result.Success {
		params.Set("notice", successNotice)
		switch {
		case result.NewAssignmentID != "":
			params.Set("shift", result.NewAssignmentID)
		case result.AssignmentID != "":
			params.Set("shift", result.AssignmentID)
		}
		if result.Event != nil && result.Event.Slug != "" {
			params.Set("event", result.Event.Slug)
		}
		return params.Encode()
	}

	notice := "error"
	switch service.Reason(result.Reason) {
	case service.ReasonLoginRequired, service.ReasonNotFound, service.ReasonForbidden:
		notice = result.Reason
	case service.ReasonTooEarly, service.ReasonAlreadyStarted:
		notice = "confirm_window"
	}
	params.Set("notice", notice)
	if result.Message != "" {
		params.Set("error", result.Message)
	}
	if result.AssignmentID != "" {
		params.Set("shift", result.AssignmentID)
	}
	return params.Encode()
}

// respond 统一输出班次操作结果
func (h *ShiftHandler) respond(c *gin.Context, result *dto.ShiftActionResult, err error) {
	if err != nil {
		h.handleShiftError(c, err)
		return
	}
	if result.Success {
		response.OK(c, result)
		return
	}

	switch service.Reason(result.Reason) {
	case service.ReasonLoginRequired:
		response.ErrorWithData(c, http.StatusUnauthorized, 14001, result.Message, result)
	case service.ReasonForbidden:
		response.ErrorWithData(c, http.StatusForbidden, 14003, result.Message, result)
	case service.ReasonNotFound:
		response.ErrorWithData(c, http.StatusNotFound, 14004, result.Message, result)
	default:
		response.ErrorWithData(c, http.StatusBadRequest, 14002, result.Message, result)
	}
}

func (h *ShiftHandler) handleShiftError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrShiftFull):
		response.Conflict(c, 14009, "This shift is already full.")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 14010, "This shift was updated elsewhere. Please try again.")
	case errors.Is(err, service.ErrRescheduleTargetRequired):
		response.BadRequest(c, 14000, "Choose a shift to move to.")
	default:
		response.InternalError(c)
	}
}

// [自证通过] internal/api/handler/shift_handler.go
