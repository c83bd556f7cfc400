package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueHostNotifications 主办方通知任务列表
	QueueHostNotifications = "worker:host_notifications"
	// QueueDLQ 重试耗尽后的死信列表
	QueueDLQ = "worker:dlq"
	// MaxRetries 进入死信前的最大尝试次数
	MaxRetries = 3
	// RetryBackoff 重试间隔
	RetryBackoff = 10 * time.Second
	// dequeueTimeout BLPOP 超时，保证 ctx 取消后能及时退出
	dequeueTimeout = 5 * time.Second
)

// JobType 任务类型
type JobType string

const (
	JobTypeHostNotification JobType = "host_notification"
)

// HostNotificationPayload 主办方通知任务载荷
type HostNotificationPayload struct {
	Type          string   `json:"type"` // register | cancel
	AssignmentIDs []string `json:"assignment_ids"`
}

// Job 通用任务信封
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue 基于 Redis List 的任务队列
type Queue struct {
	client *goredis.Client
	logger *zap.Logger
}

// NewQueue 创建任务队列
func NewQueue(client *goredis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueHostNotification 投递主办方通知任务
func (q *Queue) EnqueueHostNotification(ctx context.Context, payload HostNotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化载荷失败: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeHostNotification,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	if err := q.client.RPush(ctx, QueueHostNotifications, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("通知任务已入队",
		zap.String("job_id", job.ID),
		zap.String("type", payload.Type),
		zap.Strings("assignment_ids", payload.AssignmentIDs),
	)
	return nil
}

// Dequeue 阻塞等待任务；超时或载荷非法时返回 nil, nil
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, dequeueTimeout, QueueHostNotifications).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("任务载荷无效", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry 递增尝试次数后重新入队；达到 MaxRetries 时转入死信
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("写入死信队列失败", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("任务转入死信队列", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueHostNotifications, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("任务已重新入队", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// DecodeHostNotification 解析主办方通知任务载荷
func DecodeHostNotification(job *Job) (*HostNotificationPayload, error) {
	if job.Type != JobTypeHostNotification {
		return nil, fmt.Errorf("未知任务类型: %s", job.Type)
	}
	var payload HostNotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("解析载荷失败: %w", err)
	}
	return &payload, nil
}
