package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"volunteer-hub/internal/service"
)

// reminderTimeout 单次提醒任务的最长执行时间
const reminderTimeout = 5 * time.Minute

// Scheduler 定时任务调度器（秒级 cron 表达式）
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler 创建调度器，同一任务上一次未结束时跳过本次触发
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
	}
}

// AddConfirmReminders 注册确认提醒任务
func (s *Scheduler) AddConfirmReminders(spec string, reminder service.ReminderService) error {
	_, err := s.cron.AddFunc(spec, func() {
		RunConfirmReminders(context.Background(), reminder, s.logger)
	})
	if err != nil {
		return fmt.Errorf("注册确认提醒任务失败: %w", err)
	}
	s.logger.Info("确认提醒任务已注册", zap.String("cron", spec))
	return nil
}

// AddEventEmails 注册活动定时邮件任务
func (s *Scheduler) AddEventEmails(spec string, emails service.EventEmailService) error {
	_, err := s.cron.AddFunc(spec, func() {
		RunEventEmails(context.Background(), emails, s.logger)
	})
	if err != nil {
		return fmt.Errorf("注册活动定时邮件任务失败: %w", err)
	}
	s.logger.Info("活动定时邮件任务已注册", zap.String("cron", spec))
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() { s.cron.Start() }

// Stop 停止调度器并等待运行中的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("等待定时任务结束超时")
	}
}

// RunConfirmReminders 执行一次确认提醒
func RunConfirmReminders(ctx context.Context, reminder service.ReminderService, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, reminderTimeout)
	defer cancel()

	start := time.Now()
	sent, err := reminder.SendConfirmReminders(ctx)
	if err != nil {
		logger.Error("确认提醒任务失败", zap.Int("sent", sent), zap.Error(err))
		return
	}
	logger.Info("确认提醒任务完成", zap.Int("sent", sent), zap.Duration("elapsed", time.Since(start)))
}

// RunEventEmails 执行一次活动定时邮件扫描
func RunEventEmails(ctx context.Context, emails service.EventEmailService, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, reminderTimeout)
	defer cancel()

	start := time.Now()
	results, err := emails.SendDue(ctx)
	if err != nil {
		logger.Error("活动定时邮件任务失败", zap.Int("processed", len(results)), zap.Error(err))
		return
	}
	sent := 0
	for _, r := range results {
		sent += r.Sent
	}
	logger.Info("活动定时邮件任务完成",
		zap.Int("templates", len(results)),
		zap.Int("sent", sent),
		zap.Duration("elapsed", time.Since(start)),
	)
}
