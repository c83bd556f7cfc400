package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"volunteer-hub/internal/dto"
	"volunteer-hub/internal/model"
	"volunteer-hub/pkg/queue"
)

// HostNotifier 班次状态变化后通知主办方
// 尽力而为：失败只记录日志，不向调用方返回错误
type HostNotifier interface {
	Notify(ctx context.Context, assignmentID string, t model.NotificationType)
}

// notifyTimeout 同步发送时的超时，避免拖住请求
const notifyTimeout = 15 * time.Second

// ── 队列实现 ──

// hostNotificationEnqueuer 任务队列的最小接口
type hostNotificationEnqueuer interface {
	EnqueueHostNotification(ctx context.Context, payload queue.HostNotificationPayload) error
}

type queueNotifier struct {
	queue  hostNotificationEnqueuer
	logger *zap.Logger
}

// NewQueueNotifier 投递到 Redis 队列，由 worker 进程发送
func NewQueueNotifier(q *queue.Queue, logger *zap.Logger) HostNotifier {
	return &queueNotifier{queue: q, logger: logger}
}

func (n *queueNotifier) Notify(ctx context.Context, assignmentID string, t model.NotificationType) {
	payload := queue.HostNotificationPayload{Type: string(t), AssignmentIDs: []string{assignmentID}}
	// 请求已结束时仍需入队
	if err := n.queue.EnqueueHostNotification(context.WithoutCancel(ctx), payload); err != nil {
		n.logger.Warn("主办方通知入队失败",
			zap.String("assignment_id", assignmentID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}

// ── 同步实现 ──

type inlineNotifier struct {
	svc    HostNotificationService
	logger *zap.Logger
}

// NewInlineNotifier 在当前请求内直接发送，未启用 Redis 时使用
func NewInlineNotifier(svc HostNotificationService, logger *zap.Logger) HostNotifier {
	return &inlineNotifier{svc: svc, logger: logger}
}

func (n *inlineNotifier) Notify(ctx context.Context, assignmentID string, t model.NotificationType) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	req := &dto.HostNotificationRequest{Type: string(t), AssignmentID: assignmentID}
	if _, err := n.svc.Send(ctx, req); err != nil {
		n.logger.Warn("主办方通知发送失败",
			zap.String("assignment_id", assignmentID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}
