package service

import (
	"strings"
	"time"

	"volunteer-hub/internal/model"
)

// ConfirmWindowHours 班次开始前多少小时内允许确认
const ConfirmWindowHours = 48

// Reason 班次操作失败原因码，空串表示通过
type Reason string

const (
	ReasonOK               Reason = ""
	ReasonLoginRequired    Reason = "login_required"
	ReasonNotFound         Reason = "not_found"
	ReasonForbidden        Reason = "forbidden"
	ReasonCancelled        Reason = "cancelled"
	ReasonMissingStart     Reason = "missing_start"
	ReasonTooEarly         Reason = "too_early"
	ReasonAlreadyStarted   Reason = "already_started"
	ReasonAlreadyCancelled Reason = "already_cancelled"
	ReasonCompleted        Reason = "completed"
	ReasonPastShift        Reason = "past_shift"
	ReasonInvalidShift     Reason = "invalid_shift"
	ReasonDifferentEvent   Reason = "different_event"
	ReasonDuplicate        Reason = "duplicate"

	// 仅用于列表展示
	ReasonWaitlisted       Reason = "waitlisted"
	ReasonNotApproved      Reason = "not_approved"
	ReasonAlreadyConfirmed Reason = "already_confirmed"
)

// 面向志愿者的提示文案
const (
	msgSignInConfirm   = "Sign in to confirm shifts."
	msgSignInCancel    = "Sign in to cancel shifts."
	msgSignInManage    = "Sign in to manage shifts."
	msgForbidden       = "You do not have access to this shift."
	msgCancelled       = "This shift has already been cancelled."
	msgConfirmWindow   = "Shifts can only be confirmed within 48 hours of the start time."
	msgCannotCancel    = "This shift can no longer be cancelled."
	msgStarted         = "This shift has already started and cannot be changed."
	msgTargetMissing   = "The selected shift is unavailable."
	msgInvalidTarget   = "Unable to reschedule to the selected shift."
	msgDifferentEvent  = "Choose a shift from the same event to reschedule."
	msgTargetPast      = "Select an upcoming shift to reschedule."
	msgDuplicate       = "You are already signed up for that shift."
	msgAssignmentGone  = "Shift signup not found."
	msgSignupGone      = "Signup record not found."
	msgShiftGone       = "Shift record not found."
	msgShiftFull       = "This shift is already full."
	msgTargetRequired  = "Select a new shift to reschedule."
	msgIncompleteEntry = "Incomplete signup shift record."
)

// hoursUntil 距班次开始的小时数；start 为空时 ok=false
func hoursUntil(start *time.Time, now time.Time) (hours float64, ok bool) {
	if start == nil {
		return 0, false
	}
	return start.Sub(now).Hours(), true
}

// CheckConfirmWindow 确认窗口检查：开始时间已知，且 0 <= 距开始小时数 <= 48
func CheckConfirmWindow(shift *model.Shift, now time.Time) Reason {
	h, ok := hoursUntil(shift.StartsAt, now)
	switch {
	case !ok:
		return ReasonMissingStart
	case h > ConfirmWindowHours:
		return ReasonTooEarly
	case h < 0:
		return ReasonAlreadyStarted
	}
	return ReasonOK
}

// CheckConfirm 确认前置条件（身份与归属之外）：未取消，且处于确认窗口内
func CheckConfirm(a *model.Assignment, shift *model.Shift, now time.Time) Reason {
	if a.IsCancelled() {
		return ReasonCancelled
	}
	return CheckConfirmWindow(shift, now)
}

// CheckConfirmListing 列表中“确认”按钮的可用性
// 在 CheckConfirm 之外还要求状态为 approved 且尚未确认；确认操作本身不受这些限制
func CheckConfirmListing(a *model.Assignment, shift *model.Shift, now time.Time) Reason {
	if a.IsCancelled() {
		return ReasonCancelled
	}
	switch status := a.StatusValue(); {
	case status.IsWaitlisted():
		return ReasonWaitlisted
	case status != model.StatusApproved && status != model.StatusConfirmed:
		return ReasonNotApproved
	case a.ConfirmedAt != nil || status == model.StatusConfirmed:
		return ReasonAlreadyConfirmed
	}
	return CheckConfirmWindow(shift, now)
}

// CheckCancel 取消前置条件：未取消，且班次未结束（结束时间未知视为未结束）
func CheckCancel(a *model.Assignment, shift *model.Shift, now time.Time) Reason {
	if a.IsCancelled() {
		return ReasonAlreadyCancelled
	}
	if shift.EndsAt != nil && shift.EndsAt.Before(now) {
		return ReasonCompleted
	}
	return ReasonOK
}

// CheckUncancel 恢复前置条件：班次开始时间已知且在未来
// 分配本身未取消时不阻止，行为与直接重置为 pending 一致
func CheckUncancel(shift *model.Shift, now time.Time) Reason {
	if shift.StartsAt == nil || !shift.StartsAt.After(now) {
		return ReasonPastShift
	}
	return ReasonOK
}

// CheckRescheduleTarget 改签目标检查：目标班次属于岗位、同一活动且尚未开始
// currentEventID / targetEventID 为空表示无法确定所属活动
func CheckRescheduleTarget(target *model.Shift, currentEventID, targetEventID string, now time.Time) Reason {
	if target.OpportunityID == nil || *target.OpportunityID == "" {
		return ReasonInvalidShift
	}
	if currentEventID == "" || targetEventID == "" || currentEventID != targetEventID {
		return ReasonDifferentEvent
	}
	if target.StartsAt == nil || !target.StartsAt.After(now) {
		return ReasonPastShift
	}
	return ReasonOK
}

// IsShiftBookable 班次是否可被预订：开始时间在未来（未知视为未来）且仍有余量
func IsShiftBookable(shift *model.Shift, activeCount int, now time.Time) bool {
	if shift.StartsAt != nil && !shift.StartsAt.After(now) {
		return false
	}
	remaining, limited := remainingCapacity(shift, activeCount)
	return !limited || remaining > 0
}

// remainingCapacity 剩余容量；limited=false 表示不限
func remainingCapacity(shift *model.Shift, activeCount int) (remaining int, limited bool) {
	capacity, limited := shift.EffectiveCapacity()
	if !limited {
		return 0, false
	}
	remaining = capacity - activeCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// countActive 统计占用容量的分配数，excludeID 非空时排除该分配
func countActive(assignments []model.Assignment, excludeID string) int {
	n := 0
	for i := range assignments {
		if excludeID != "" && assignments[i].ID == excludeID {
			continue
		}
		if assignments[i].CountsTowardCapacity() {
			n++
		}
	}
	return n
}

// statusLabel 列表展示用状态文案
func statusLabel(a *model.Assignment) string {
	if a.IsCancelled() {
		return "Cancelled"
	}
	status := a.StatusValue()
	if status == model.StatusConfirmed || a.ConfirmedAt != nil {
		return "Confirmed"
	}
	raw := strings.ToLower(strings.TrimSpace(a.Status))
	if raw == "" {
		return "Pending"
	}
	switch status {
	case model.StatusApproved:
		return "Approved"
	case model.StatusPending:
		return "Pending approval"
	case model.StatusWaitlisted:
		return "Waitlisted"
	case model.StatusUnknown:
		return capitalize(raw)
	}
	return "Pending"
}

func capitalize(s string) string {
	b := []rune(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
