package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"volunteer-hub/internal/dto"
	"volunteer-hub/internal/model"
	"volunteer-hub/internal/repository"
	"volunteer-hub/pkg/session"
)

// maxListedSignups 列表最多加载的报名数
const maxListedSignups = 200

// ShiftListingService 我的班次列表（只读视图）
type ShiftListingService interface {
	ListMyShifts(ctx context.Context, user *session.User, req *dto.MyShiftsRequest) (*dto.MyShiftsResponse, error)
}

type shiftListingService struct {
	repo   *repository.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewShiftListingService 创建 ShiftListingService 实例
func NewShiftListingService(repo *repository.Repository, logger *zap.Logger) ShiftListingService {
	return &shiftListingService{repo: repo, now: time.Now, logger: logger}
}

// volunteerShifts 一次加载得到的全部关联数据
type volunteerShifts struct {
	assignments   []model.Assignment
	shifts        map[string]*model.Shift
	opportunities map[string]*model.Opportunity
	events        map[string]*model.Event
	eventOrder    []string
	activeCounts  map[string]int
	allShifts     []model.Shift
}

// loadVolunteerShifts 加载身份下所有报名及其关联的活动、岗位、班次、分配与各班次占用数
func loadVolunteerShifts(ctx context.Context, repo *repository.Repository, id identity) (*volunteerShifts, error) {
	data := &volunteerShifts{
		shifts:        map[string]*model.Shift{},
		opportunities: map[string]*model.Opportunity{},
		events:        map[string]*model.Event{},
		activeCounts:  map[string]int{},
	}

	signups, err := repo.Signup.ListByVolunteer(ctx, id.UserID, id.Email, maxListedSignups)
	if err != nil {
		return nil, err
	}
	if len(signups) == 0 {
		return data, nil
	}

	var signupIDs, eventIDs []string
	for _, s := range signups {
		signupIDs = append(signupIDs, s.ID)
		if s.EventID != nil {
			eventIDs = append(eventIDs, *s.EventID)
		}
	}

	events, err := repo.Event.ListByIDs(ctx, uniqueStrings(eventIDs))
	if err != nil {
		return nil, err
	}
	for i := range events {
		data.events[events[i].ID] = &events[i]
		data.eventOrder = append(data.eventOrder, events[i].ID)
	}

	opps, err := repo.Opportunity.ListByEventIDs(ctx, data.eventOrder)
	if err != nil {
		return nil, err
	}
	var oppIDs []string
	for i := range opps {
		data.opportunities[opps[i].ID] = &opps[i]
		oppIDs = append(oppIDs, opps[i].ID)
	}

	data.allShifts, err = repo.Shift.ListByOpportunityIDs(ctx, oppIDs)
	if err != nil {
		return nil, err
	}
	var shiftIDs []string
	for i := range data.allShifts {
		data.shifts[data.allShifts[i].ID] = &data.allShifts[i]
		shiftIDs = append(shiftIDs, data.allShifts[i].ID)
	}

	data.assignments, err = repo.Assignment.ListBySignupIDs(ctx, signupIDs)
	if err != nil {
		return nil, err
	}

	occupying, err := repo.Assignment.ListByShiftIDs(ctx, shiftIDs)
	if err != nil {
		return nil, err
	}
	for i := range occupying {
		if occupying[i].CountsTowardCapacity() {
			data.activeCounts[occupying[i].ShiftID]++
		}
	}
	return data, nil
}

// join 分配关联到班次、岗位、活动；任一缺失返回 ok=false
func (d *volunteerShifts) join(a *model.Assignment) (*model.Shift, *model.Opportunity, *model.Event, bool) {
	shift := d.shifts[a.ShiftID]
	if shift == nil || shift.OpportunityID == nil {
		return nil, nil, nil, false
	}
	opp := d.opportunities[*shift.OpportunityID]
	if opp == nil {
		return nil, nil, nil, false
	}
	event := d.events[opp.EventID]
	if event == nil {
		return nil, nil, nil, false
	}
	return shift, opp, event, true
}

// availableShifts 活动下仍可预订的班次，按开始时间升序（未知开始时间排最后）
func (d *volunteerShifts) availableShifts(eventID string, now time.Time) []dto.AvailableShift {
	var list []dto.AvailableShift
	var starts []*time.Time
	for i := range d.allShifts {
		shift := &d.allShifts[i]
		if shift.OpportunityID == nil {
			continue
		}
		opp := d.opportunities[*shift.OpportunityID]
		if opp == nil || opp.EventID != eventID {
			continue
		}
		count := d.activeCounts[shift.ID]
		if !IsShiftBookable(shift, count, now) {
			continue
		}
		item := dto.AvailableShift{
			Shift:       *dto.NewShiftBrief(shift),
			Opportunity: dto.OpportunityBrief{ID: opp.ID, Title: opp.Title},
			Count:       count,
		}
		if remaining, limited := remainingCapacity(shift, count); limited {
			item.Remaining = &remaining
		}
		list = append(list, item)
		starts = append(starts, shift.StartsAt)
	}

	idx := make([]int, len(list))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return timeLess(starts[idx[a]], starts[idx[b]])
	})
	sorted := make([]dto.AvailableShift, len(list))
	for i, j := range idx {
		sorted[i] = list[j]
	}
	return sorted
}

// ════════════════════════════════════════════════════════════
// ListMyShifts 按活动分组的即将到来 / 已过去班次
// ════════════════════════════════════════════════════════════

type shiftGroup struct {
	group    dto.EventShiftGroup
	earliest *time.Time
}

func (s *shiftListingService) ListMyShifts(ctx context.Context, user *session.User, req *dto.MyShiftsRequest) (*dto.MyShiftsResponse, error) {
	now := s.now()
	resp := &dto.MyShiftsResponse{
		Upcoming:           []dto.EventShiftGroup{},
		Past:               []dto.EventShiftGroup{},
		ConfirmWindowHours: ConfirmWindowHours,
		RetrievedAt:        now.UTC().Format(time.RFC3339),
	}
	if req != nil {
		resp.Feedback = FormatFeedback(req.Notice, req.Error)
		resp.HighlightedShiftID = req.Shift
	}

	id, err := resolveIdentity(ctx, s.repo, s.logger, user)
	if err != nil {
		return nil, err
	}
	if id.anonymous() {
		return resp, nil
	}

	data, err := loadVolunteerShifts(ctx, s.repo, id)
	if err != nil {
		s.logger.Error("加载我的班次失败", zap.String("user_id", id.UserID), zap.Error(err))
		return nil, err
	}

	available := map[string][]dto.AvailableShift{}
	for _, eventID := range data.eventOrder {
		available[eventID] = data.availableShifts(eventID, now)
	}

	upcoming := map[string]*shiftGroup{}
	past := map[string]*shiftGroup{}
	for i := range data.assignments {
		a := &data.assignments[i]
		shift, opp, event, ok := data.join(a)
		if !ok {
			continue
		}

		comparison := firstTime(shift.StartsAt, shift.EndsAt, event.EventEnd, event.EventStart)
		isUpcoming := comparison == nil || !comparison.Before(now)

		item := dto.MyShiftItem{
			AssignmentID: a.ID,
			Status:       a.Status,
			StatusLabel:  statusLabel(a),
			ConfirmedAt:  dto.FormatTime(a.ConfirmedAt),
			CancelledAt:  dto.FormatTime(a.CancelledAt),
			Opportunity:  dto.OpportunityBrief{ID: opp.ID, Title: opp.Title},
			Shift:        *dto.NewShiftBrief(shift),
		}

		target := past
		if isUpcoming {
			target = upcoming
			annotate(&item, a, shift, available[event.ID], now)
		}

		g := target[event.ID]
		if g == nil {
			g = &shiftGroup{group: dto.EventShiftGroup{
				Event:           *dto.NewEventBrief(event),
				AvailableShifts: available[event.ID],
			}}
			target[event.ID] = g
		}
		g.group.Assignments = append(g.group.Assignments, item)
		if comparison != nil && (g.earliest == nil || comparison.Before(*g.earliest)) {
			t := *comparison
			g.earliest = &t
		}
	}

	resp.Upcoming = sortGroups(upcoming, true)
	resp.Past = sortGroups(past, false)
	return resp, nil
}

// annotate 用与真实操作相同的前置检查计算可执行操作，确认按钮额外按状态收紧
func annotate(item *dto.MyShiftItem, a *model.Assignment, shift *model.Shift, available []dto.AvailableShift, now time.Time) {
	if h, ok := hoursUntil(shift.StartsAt, now); ok {
		item.HoursUntilStart = &h
	}

	confirm := CheckConfirmListing(a, shift, now)
	item.CanConfirm = confirm == ReasonOK
	item.ConfirmBlockedReason = string(confirm)
	item.CanCancel = CheckCancel(a, shift, now) == ReasonOK
	item.CanUncancel = a.IsCancelled() && CheckUncancel(shift, now) == ReasonOK

	startsInFuture := shift.StartsAt != nil && shift.StartsAt.After(now)
	hasOther := false
	for _, candidate := range available {
		if candidate.Shift.ID != a.ShiftID {
			hasOther = true
			break
		}
	}
	item.CanReschedule = startsInFuture && hasOther
}

// sortGroups 按最早时间排序：即将到来升序，已过去降序；无时间的分组排最后
func sortGroups(groups map[string]*shiftGroup, ascending bool) []dto.EventShiftGroup {
	list := make([]*shiftGroup, 0, len(groups))
	for _, g := range groups {
		list = append(list, g)
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].earliest, list[j].earliest
		switch {
		case a == nil && b == nil:
			return list[i].group.Event.ID < list[j].group.Event.ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return list[i].group.Event.ID < list[j].group.Event.ID
		case ascending:
			return a.Before(*b)
		default:
			return a.After(*b)
		}
	})

	out := make([]dto.EventShiftGroup, 0, len(list))
	for _, g := range list {
		out = append(out, g.group)
	}
	return out
}

// FormatFeedback 将重定向携带的 notice 转为页面提示
func FormatFeedback(notice, errorMessage string) *dto.Feedback {
	if notice == "" {
		return nil
	}
	switch strings.ToLower(notice) {
	case "confirm_success":
		return &dto.Feedback{Type: "success", Message: "Shift confirmed. Thanks for being ready to help!"}
	case "cancel_success":
		return &dto.Feedback{Type: "success", Message: "Shift cancelled. Your spot has been released."}
	case "uncancel_success":
		return &dto.Feedback{Type: "success", Message: "Shift re-activated. We look forward to seeing you!"}
	case "reschedule_success":
		return &dto.Feedback{Type: "success", Message: "Shift updated. We saved your new time."}
	case "login_required":
		return &dto.Feedback{Type: "info", Message: "Please sign in to manage your volunteer shifts."}
	case "forbidden":
		return &dto.Feedback{Type: "error", Message: "We could not verify access to that shift."}
	case "not_found":
		return &dto.Feedback{Type: "error", Message: "That shift was not found or is no longer active."}
	case "confirm_window":
		return &dto.Feedback{Type: "error", Message: msgConfirmWindow}
	case "error":
		if errorMessage != "" {
			return &dto.Feedback{Type: "error", Message: errorMessage}
		}
		return &dto.Feedback{Type: "error", Message: "Something went wrong with your shift update."}
	}
	if errorMessage != "" {
		return &dto.Feedback{Type: "error", Message: errorMessage}
	}
	return nil
}

// ── 工具函数 ──

func firstTime(times ...*time.Time) *time.Time {
	for _, t := range times {
		if t != nil {
			return t
		}
	}
	return nil
}

// timeLess nil 视为无穷大
func timeLess(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.Before(*b)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
