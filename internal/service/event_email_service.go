package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"volunteer-hub/config"
	"volunteer-hub/internal/dto"
	"volunteer-hub/internal/model"
	"volunteer-hub/internal/repository"
	"volunteer-hub/pkg/mailer"
)

const (
	// resendGuard last_sent_at 不早于计划时间前 1 小时即视为本轮已发送
	resendGuard = time.Hour
	// staleAfterEnd 活动结束超过 1 天仍无人可发时同样标记已发送，避免反复扫描
	staleAfterEnd = 24 * time.Hour
)

// EventEmailService 活动定时邮件：按模板的发送偏移向已批准的志愿者群发
type EventEmailService interface {
	SendDue(ctx context.Context) ([]dto.EventEmailResult, error)
}

type eventEmailService struct {
	repo    *repository.Repository
	mailer  mailer.Mailer
	baseURL string
	now     func() time.Time
	logger  *zap.Logger
}

// NewEventEmailService 创建 EventEmailService 实例
func NewEventEmailService(cfg *config.Config, repo *repository.Repository, m mailer.Mailer, logger *zap.Logger) EventEmailService {
	return &eventEmailService{
		repo:    repo,
		mailer:  m,
		baseURL: cfg.Server.BaseURL,
		now:     time.Now,
		logger:  logger,
	}
}

// IsEventEmailDue 模板是否到期：计划时间已过，且本轮尚未发送
func IsEventEmailDue(tpl *model.EventEmail, event *model.Event, now time.Time) bool {
	if event == nil || !tpl.Complete() {
		return false
	}
	if s := strings.TrimSpace(event.Status); s != "" && s != "published" {
		return false
	}
	scheduled, ok := tpl.ScheduledAt(event.EventStart)
	if !ok || scheduled.After(now) {
		return false
	}
	if tpl.LastSentAt != nil && !tpl.LastSentAt.Before(scheduled.Add(-resendGuard)) {
		return false
	}
	return true
}

// ════════════════════════════════════════════════════════════
// SendDue 扫描全部模板并发送到期的邮件
// ════════════════════════════════════════════════════════════

func (s *eventEmailService) SendDue(ctx context.Context) ([]dto.EventEmailResult, error) {
	now := s.now()
	templates, err := s.repo.EventEmail.ListScheduled(ctx)
	if err != nil {
		s.logger.Error("查询活动定时邮件失败", zap.Error(err))
		return nil, err
	}

	var results []dto.EventEmailResult
	for i := range templates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		tpl := &templates[i]
		if !IsEventEmailDue(tpl, tpl.Event, now) {
			continue
		}
		res, err := s.process(ctx, tpl, now)
		if err != nil {
			s.logger.Error("处理活动定时邮件失败", zap.String("template_id", tpl.ID), zap.Error(err))
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	s.logger.Info("活动定时邮件执行完成", zap.Int("templates", len(templates)), zap.Int("processed", len(results)))
	return results, nil
}

// emailRecipient 一个收件志愿者及其有效班次
type emailRecipient struct {
	Signup *model.Signup
	Email  string
	Name   string
	Shifts []mergeShift
}

func (s *eventEmailService) process(ctx context.Context, tpl *model.EventEmail, now time.Time) (dto.EventEmailResult, error) {
	event := tpl.Event
	res := dto.EventEmailResult{TemplateID: tpl.ID, EventID: event.ID}

	recipients, err := s.loadRecipients(ctx, event)
	if err != nil {
		return res, err
	}
	res.Recipients = len(recipients)

	for _, r := range recipients {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if s.send(ctx, tpl, event, r, now) {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	stale := event.EventEnd != nil && now.Sub(*event.EventEnd) > staleAfterEnd
	if res.Sent > 0 || stale {
		if err := s.repo.EventEmail.MarkSent(ctx, tpl.ID, now); err != nil {
			return res, fmt.Errorf("更新发送时间失败: %w", err)
		}
	}
	return res, nil
}

// send 渲染并发送一封邮件，返回是否成功
func (s *eventEmailService) send(ctx context.Context, tpl *model.EventEmail, event *model.Event, r emailRecipient, now time.Time) bool {
	mc := &mergeContext{
		Event:               event,
		VolunteerName:       r.Name,
		Shifts:              r.Shifts,
		PortalURL:           strings.TrimRight(s.baseURL, "/") + "/volunteer/shifts",
		RequireConfirmation: tpl.RequireConfirmation,
	}
	subject := RenderMergeSubject(tpl.Subject, mc)
	if subject == "" {
		subject = "Volunteer update"
	}
	text, html, err := RenderMergeBody(tpl.Body, mc)
	if err != nil {
		s.logger.Error("渲染活动定时邮件失败", zap.String("template_id", tpl.ID), zap.Error(err))
		return false
	}

	sendErr := s.mailer.Send(ctx, mailer.Message{
		To:      []string{r.Email},
		ReplyTo: strings.TrimSpace(event.ContactEmail),
		Subject: subject,
		Text:    text,
		HTML:    html,
		Tags: map[string]string{
			"volunteer_event_id":          event.ID,
			"volunteer_email_template_id": tpl.ID,
			"volunteer_email_type":        tpl.TypeTag(),
		},
	})

	entry := &model.EmailLog{
		EventID:        &event.ID,
		TemplateID:     &tpl.ID,
		EmailType:      model.EmailTypeScheduled,
		RecipientEmail: r.Email,
		Subject:        subject,
		Status:         model.EmailStatusSent,
		SentAt:         &now,
	}
	if sendErr != nil {
		entry.Status = model.EmailStatusFailed
		entry.SentAt = nil
		entry.ErrorMessage = sendErr.Error()
	}
	if err := s.repo.EmailLog.Create(ctx, entry); err != nil {
		s.logger.Warn("写入邮件记录失败", zap.String("template_id", tpl.ID), zap.Error(err))
	}
	if sendErr != nil {
		s.logger.Warn("发送活动定时邮件失败",
			zap.String("template_id", tpl.ID),
			zap.String("signup_id", r.Signup.ID),
			zap.Error(sendErr),
		)
		return false
	}
	return true
}

// loadRecipients 加载活动下持有 approved 或 confirmed 分配的志愿者
// 同一邮箱的多条报名合并为一位收件人
func (s *eventEmailService) loadRecipients(ctx context.Context, event *model.Event) ([]emailRecipient, error) {
	signups, err := s.repo.Signup.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("查询报名失败: %w", err)
	}
	if len(signups) == 0 {
		return nil, nil
	}
	signupIDs := make([]string, 0, len(signups))
	for i := range signups {
		signupIDs = append(signupIDs, signups[i].ID)
	}
	assignments, err := s.repo.Assignment.ListBySignupIDs(ctx, signupIDs)
	if err != nil {
		return nil, fmt.Errorf("查询班次分配失败: %w", err)
	}

	shifts, opps, err := s.loadEventShifts(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	profiles := s.loadProfiles(ctx, signups)

	bySignup := make(map[string][]model.Assignment)
	for _, a := range assignments {
		if a.IsCancelled() {
			continue
		}
		if st := a.StatusValue(); st != model.StatusApproved && st != model.StatusConfirmed {
			continue
		}
		bySignup[a.SignupID] = append(bySignup[a.SignupID], a)
	}

	base := strings.TrimRight(s.baseURL, "/")
	var recipients []emailRecipient
	index := make(map[string]int)
	for i := range signups {
		su := &signups[i]
		active := bySignup[su.ID]
		if len(active) == 0 {
			continue
		}
		profile := profileFor(su, profiles)
		email := strings.TrimSpace(su.VolunteerEmail)
		if email == "" && profile != nil {
			email = strings.TrimSpace(profile.Email)
		}
		if email == "" {
			continue
		}

		var lines []mergeShift
		for _, a := range active {
			sh, ok := shifts[a.ShiftID]
			if !ok {
				continue
			}
			lines = append(lines, buildMergeShift(base, &a, sh, opps, event))
		}
		if len(lines) == 0 {
			continue
		}

		key := strings.ToLower(email)
		if at, ok := index[key]; ok {
			recipients[at].Shifts = append(recipients[at].Shifts, lines...)
			continue
		}
		index[key] = len(recipients)
		recipients = append(recipients, emailRecipient{
			Signup: su,
			Email:  email,
			Name:   volunteerDisplayName(su, profile),
			Shifts: lines,
		})
	}
	return recipients, nil
}

func (s *eventEmailService) loadEventShifts(ctx context.Context, eventID string) (map[string]*model.Shift, map[string]*model.Opportunity, error) {
	opps, err := s.repo.Opportunity.ListByEventIDs(ctx, []string{eventID})
	if err != nil {
		return nil, nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	oppByID := make(map[string]*model.Opportunity, len(opps))
	oppIDs := make([]string, 0, len(opps))
	for i := range opps {
		oppByID[opps[i].ID] = &opps[i]
		oppIDs = append(oppIDs, opps[i].ID)
	}
	shifts, err := s.repo.Shift.ListByOpportunityIDs(ctx, oppIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("查询班次失败: %w", err)
	}
	shiftByID := make(map[string]*model.Shift, len(shifts))
	for i := range shifts {
		shiftByID[shifts[i].ID] = &shifts[i]
	}
	return shiftByID, oppByID, nil
}

// loadProfiles 资料查询失败不影响发送，只记录日志
func (s *eventEmailService) loadProfiles(ctx context.Context, signups []model.Signup) map[string]*model.Profile {
	var userIDs []string
	for _, su := range signups {
		if su.VolunteerUserID != nil && *su.VolunteerUserID != "" {
			userIDs = append(userIDs, *su.VolunteerUserID)
		}
	}
	result := make(map[string]*model.Profile)
	if len(userIDs) == 0 {
		return result
	}
	profiles, err := s.repo.Profile.ListByUserIDs(ctx, userIDs)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("查询志愿者资料失败", zap.Error(err))
		return result
	}
	for i := range profiles {
		result[profiles[i].UserID] = &profiles[i]
	}
	return result
}

func profileFor(su *model.Signup, profiles map[string]*model.Profile) *model.Profile {
	if su.VolunteerUserID == nil {
		return nil
	}
	return profiles[*su.VolunteerUserID]
}

// volunteerDisplayName 报名姓名 → 资料姓名 → 邮箱 → Volunteer
func volunteerDisplayName(su *model.Signup, profile *model.Profile) string {
	candidates := []string{su.VolunteerName}
	if profile != nil {
		candidates = append(candidates, profile.FullName)
	}
	candidates = append(candidates, su.VolunteerEmail)
	if profile != nil {
		candidates = append(candidates, profile.Email)
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return "Volunteer"
}

// buildMergeShift 确认走一键确认链接，取消需回到我的班次页操作
func buildMergeShift(base string, a *model.Assignment, sh *model.Shift, opps map[string]*model.Opportunity, event *model.Event) mergeShift {
	title := strings.TrimSpace(event.Title)
	if sh.OpportunityID != nil {
		if opp, ok := opps[*sh.OpportunityID]; ok && strings.TrimSpace(opp.Title) != "" {
			title = strings.TrimSpace(opp.Title)
		}
	}
	location := strings.TrimSpace(sh.LocationName)
	if addr := strings.TrimSpace(sh.LocationAddress); addr != "" {
		if location != "" {
			location += ", "
		}
		location += addr
	}
	if location == "" {
		location = eventLocation(event)
	}
	return mergeShift{
		AssignmentID: a.ID,
		Title:        title,
		Window:       FormatShiftWindow(sh, event),
		Location:     location,
		Notes:        strings.TrimSpace(sh.Notes),
		ConfirmURL:   fmt.Sprintf("%s/volunteer/shifts/%s/confirm", base, a.ID),
		CancelURL:    fmt.Sprintf("%s/volunteer/shifts?shift=%s&action=cancel", base, url.QueryEscape(a.ID)),
	}
}
