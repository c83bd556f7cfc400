package dto

// ── 班次操作 DTO ──

// RescheduleRequest 改签班次请求
type RescheduleRequest struct {
	NewShiftID string `json:"new_shift_id"`
}

// ShiftActionResult 班次操作结果
// Success=false 时 Reason/Message 说明失败原因
type ShiftActionResult struct {
	Success         bool        `json:"success"`
	Reason          string      `json:"reason,omitempty"`
	Message         string      `json:"message,omitempty"`
	AssignmentID    string      `json:"assignment_id,omitempty"`
	NewAssignmentID string      `json:"new_assignment_id,omitempty"`
	Event           *EventBrief `json:"event,omitempty"`
	Shift           *ShiftBrief `json:"shift,omitempty"`
}

// ── 我的班次列表 ──

// MyShiftsRequest 列表查询参数（重定向回列表页时携带的提示）
type MyShiftsRequest struct {
	Notice string `form:"notice"`
	Error  string `form:"error"`
	Shift  string `form:"shift"`
}

// Feedback 页面提示
type Feedback struct {
	Type    string `json:"type"` // success | info | error
	Message string `json:"message"`
}

// MyShiftsResponse 我的班次列表响应
type MyShiftsResponse struct {
	Feedback           *Feedback         `json:"feedback,omitempty"`
	HighlightedShiftID string            `json:"highlighted_shift_id,omitempty"`
	Upcoming           []EventShiftGroup `json:"upcoming_events"`
	Past               []EventShiftGroup `json:"past_events"`
	ConfirmWindowHours int               `json:"confirm_window_hours"`
	RetrievedAt        string            `json:"retrieved_at"`
}

// EventShiftGroup 按活动分组的班次
type EventShiftGroup struct {
	Event           EventBrief       `json:"event"`
	Assignments     []MyShiftItem    `json:"assignments"`
	AvailableShifts []AvailableShift `json:"available_shifts"`
}

// MyShiftItem 单条班次分配及可执行操作
type MyShiftItem struct {
	AssignmentID         string           `json:"id"`
	Status               string           `json:"status"`
	StatusLabel          string           `json:"status_label"`
	ConfirmedAt          *string          `json:"confirmed_at,omitempty"`
	CancelledAt          *string          `json:"cancelled_at,omitempty"`
	Opportunity          OpportunityBrief `json:"opportunity"`
	Shift                ShiftBrief       `json:"shift"`
	HoursUntilStart      *float64         `json:"hours_until_start,omitempty"`
	CanConfirm           bool             `json:"can_confirm"`
	CanCancel            bool             `json:"can_cancel"`
	CanUncancel          bool             `json:"can_uncancel"`
	CanReschedule        bool             `json:"can_reschedule"`
	ConfirmBlockedReason string           `json:"confirm_blocked_reason,omitempty"`
}

// AvailableShift 可改签的班次
type AvailableShift struct {
	Shift       ShiftBrief       `json:"shift"`
	Opportunity OpportunityBrief `json:"opportunity"`
	Count       int              `json:"count"`
	Remaining   *int             `json:"remaining,omitempty"` // nil 表示不限
}

// ── 主办方通知 ──

// HostNotificationRequest 主办方通知请求
type HostNotificationRequest struct {
	Type          string   `json:"type"           binding:"required"`
	AssignmentID  string   `json:"assignment_id"`
	AssignmentIDs []string `json:"assignment_ids"`
}

// IDs 合并并去重 assignment_id 与 assignment_ids，保持原有顺序
func (r *HostNotificationRequest) IDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	add(r.AssignmentID)
	for _, id := range r.AssignmentIDs {
		add(id)
	}
	return ids
}

// HostNotificationResponse 主办方通知结果
type HostNotificationResponse struct {
	Sent    int `json:"sent"`    // 收件人总数
	Events  int `json:"events"`  // 实际发送的活动数
	Skipped int `json:"skipped"` // 因开关关闭或无收件人跳过的活动数
}

// ReminderRunResponse 确认提醒执行结果
type ReminderRunResponse struct {
	Sent int `json:"sent"`
}

// EventEmailResult 单个定时邮件模板的处理结果
type EventEmailResult struct {
	TemplateID string `json:"template_id"`
	EventID    string `json:"event_id"`
	Recipients int    `json:"recipients"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// EventEmailRunResponse 活动定时邮件执行结果
type EventEmailRunResponse struct {
	Processed int                `json:"processed"`
	Results   []EventEmailResult `json:"results"`
}
