package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"volunteer-hub/config"
	"volunteer-hub/internal/model"
	"volunteer-hub/internal/repository"
	"volunteer-hub/pkg/mailer"
)

// ReminderService 确认提醒：提醒即将开始、已批准但未确认的志愿者
type ReminderService interface {
	SendConfirmReminders(ctx context.Context) (int, error)
}

type reminderService struct {
	repo    *repository.Repository
	mailer  mailer.Mailer
	baseURL string
	now     func() time.Time
	logger  *zap.Logger
}

// NewReminderService 创建 ReminderService 实例
func NewReminderService(cfg *config.Config, repo *repository.Repository, m mailer.Mailer, logger *zap.Logger) ReminderService {
	return &reminderService{
		repo:    repo,
		mailer:  m,
		baseURL: cfg.Server.BaseURL,
		now:     time.Now,
		logger:  logger,
	}
}

// ════════════════════════════════════════════════════════════
// SendConfirmReminders 扫描确认窗口内的待确认分配并逐个提醒
// ════════════════════════════════════════════════════════════

func (s *reminderService) SendConfirmReminders(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.repo.Assignment.ListPendingConfirmation(ctx, now, now.Add(ConfirmWindowHours*time.Hour))
	if err != nil {
		s.logger.Error("查询待确认分配失败", zap.Error(err))
		return 0, err
	}

	sent := 0
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		a := &candidates[i]

		already, err := s.repo.EmailLog.HasSent(ctx, a.ID, model.EmailTypeConfirmRemind)
		if err != nil {
			s.logger.Warn("查询提醒记录失败", zap.String("assignment_id", a.ID), zap.Error(err))
			continue
		}
		if already {
			continue
		}

		if s.remind(ctx, a.ID, now) {
			sent++
		}
	}

	s.logger.Info("确认提醒执行完成", zap.Int("candidates", len(candidates)), zap.Int("sent", sent))
	return sent, nil
}

// remind 向单个分配的志愿者发送提醒，返回是否发送成功
func (s *reminderService) remind(ctx context.Context, assignmentID string, now time.Time) bool {
	c, err := loadAssignmentContext(ctx, s.repo, assignmentID)
	if err != nil {
		s.logger.Warn("加载提醒上下文失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		return false
	}
	// 查询与加载之间状态可能已变化
	if c.Assignment.IsCancelled() || c.Assignment.ConfirmedAt != nil || CheckConfirmWindow(c.Shift, now) != ReasonOK {
		return false
	}

	to := strings.TrimSpace(c.Signup.VolunteerEmail)
	if to == "" {
		return false
	}

	content, err := renderReminderEmail(c, s.baseURL)
	if err != nil {
		s.logger.Error("渲染提醒邮件失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		return false
	}

	msg := mailer.Message{
		To:      []string{to},
		Subject: content.Subject,
		Text:    content.Text,
		HTML:    content.HTML,
		Tags:    map[string]string{"context": "volunteer-shift-confirm-reminder"},
	}
	var eventID string
	if c.Event != nil {
		msg.ReplyTo = strings.TrimSpace(c.Event.ContactEmail)
		eventID = c.Event.ID
	}

	sendErr := s.mailer.Send(ctx, msg)
	entry := newEmailLog(eventID, assignmentID, model.EmailTypeConfirmRemind, to, content.Subject, sendErr, now)
	if err := s.repo.EmailLog.Create(ctx, entry); err != nil {
		s.logger.Warn("写入邮件记录失败", zap.String("assignment_id", assignmentID), zap.Error(err))
	}
	if sendErr != nil {
		s.logger.Warn("发送确认提醒失败", zap.String("assignment_id", assignmentID), zap.Error(sendErr))
		return false
	}
	return true
}
