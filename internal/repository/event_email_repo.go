package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"volunteer-hub/internal/model"
)

// EventEmailRepository 活动定时邮件模板数据访问接口
type EventEmailRepository interface {
	// ListScheduled 查询已发布活动的全部模板，预加载 Event
	ListScheduled(ctx context.Context) ([]model.EventEmail, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
}

type eventEmailRepo struct {
	db *gorm.DB
}

func NewEventEmailRepo(db *gorm.DB) EventEmailRepository {
	return &eventEmailRepo{db: db}
}

func (r *eventEmailRepo) ListScheduled(ctx context.Context) ([]model.EventEmail, error) {
	var list []model.EventEmail
	err := r.db.WithContext(ctx).
		Joins("Event").
		Where(`"Event".status = ?`, "published").
		Where(`"Event".event_start IS NOT NULL`).
		Order("volunteer_event_emails.created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *eventEmailRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.EventEmail{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_sent_at": at,
			"updated_at":   time.Now(),
		}).Error
}
