package repository

import (
	"context"

	"gorm.io/gorm"

	"volunteer-hub/internal/model"
)

// ProfileRepository 用户资料数据访问接口
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.Profile, error)
	ListByUserIDs(ctx context.Context, userIDs []string) ([]model.Profile, error)
}

// GroupMemberRepository 群组成员数据访问接口
type GroupMemberRepository interface {
	ListUserIDsByRole(ctx context.Context, groupID, role string) ([]string, error)
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepo) ListByUserIDs(ctx context.Context, userIDs []string) ([]model.Profile, error) {
	var list []model.Profile
	if len(userIDs) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&list).Error
	return list, err
}

type groupMemberRepo struct {
	db *gorm.DB
}

func NewGroupMemberRepo(db *gorm.DB) GroupMemberRepository {
	return &groupMemberRepo{db: db}
}

func (r *groupMemberRepo) ListUserIDsByRole(ctx context.Context, groupID, role string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Where("group_id = ? AND role = ?", groupID, role).
		Pluck("user_id", &ids).Error
	return ids, err
}
