package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"volunteer-hub/internal/model"
	"volunteer-hub/internal/repository"
	"volunteer-hub/pkg/session"
)

// ── 上下文加载相关错误 ──

var (
	ErrIncompleteAssignment = errors.New("班次分配记录缺少报名或班次引用")
	ErrShiftFull            = errors.New("班次名额已满")
)

// contextNotFoundError 分配、报名或班次不存在；Message 面向志愿者展示
type contextNotFoundError struct {
	Message string
}

func (e *contextNotFoundError) Error() string { return e.Message }

// identity 调用者身份
type identity struct {
	UserID string
	Email  string // 已转小写
}

func (i identity) anonymous() bool { return i.UserID == "" && i.Email == "" }

// resolveIdentity 由会话用户解析身份；有用户 ID 但无邮箱时回查 profiles
// 资料不存在不视为错误
func resolveIdentity(ctx context.Context, repo *repository.Repository, logger *zap.Logger, user *session.User) (identity, error) {
	if user.Anonymous() {
		return identity{}, nil
	}
	id := identity{UserID: user.ID, Email: strings.ToLower(strings.TrimSpace(user.Email))}
	if id.UserID != "" && id.Email == "" {
		profile, err := repo.Profile.GetByUserID(ctx, id.UserID)
		switch {
		case err == nil:
			id.Email = strings.ToLower(strings.TrimSpace(profile.Email))
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			logger.Error("查询用户资料失败", zap.String("user_id", id.UserID), zap.Error(err))
			return identity{}, err
		}
	}
	return id, nil
}

// assignmentContext 一次班次操作所需的关联数据
type assignmentContext struct {
	Assignment  *model.Assignment
	Signup      *model.Signup
	Shift       *model.Shift
	Opportunity *model.Opportunity // 可能为空
	Event       *model.Event       // 可能为空
}

// EventID 当前分配所属活动：优先取岗位的活动，其次取报名的活动
func (c *assignmentContext) EventID() string {
	if c.Opportunity != nil && c.Opportunity.EventID != "" {
		return c.Opportunity.EventID
	}
	if c.Signup.EventID != nil {
		return *c.Signup.EventID
	}
	return ""
}

// loadAssignmentContext 依次加载 分配 → 报名 → 班次 → 岗位 → 活动
// 分配、报名、班次缺失返回 *contextNotFoundError；岗位与活动缺失时置空
func loadAssignmentContext(ctx context.Context, repo *repository.Repository, assignmentID string) (*assignmentContext, error) {
	assignment, err := repo.Assignment.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &contextNotFoundError{Message: msgAssignmentGone}
		}
		return nil, err
	}
	if assignment.SignupID == "" || assignment.ShiftID == "" {
		return nil, ErrIncompleteAssignment
	}

	signup, err := repo.Signup.GetByID(ctx, assignment.SignupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &contextNotFoundError{Message: msgSignupGone}
		}
		return nil, err
	}

	shift, err := repo.Shift.GetByID(ctx, assignment.ShiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &contextNotFoundError{Message: msgShiftGone}
		}
		return nil, err
	}

	c := &assignmentContext{Assignment: assignment, Signup: signup, Shift: shift}

	if shift.OpportunityID != nil && *shift.OpportunityID != "" {
		opp, err := repo.Opportunity.GetByID(ctx, *shift.OpportunityID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		c.Opportunity = opp
	}

	if eventID := c.EventID(); eventID != "" {
		event, err := repo.Event.GetByID(ctx, eventID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		c.Event = event
	}
	return c, nil
}

// ensureCapacity 校验班次余量；excludeID 非空时不计入该分配
func ensureCapacity(ctx context.Context, repo *repository.Repository, shift *model.Shift, excludeID string) error {
	if _, limited := shift.EffectiveCapacity(); !limited {
		return nil
	}
	assignments, err := repo.Assignment.ListByShift(ctx, shift.ID)
	if err != nil {
		return err
	}
	if remaining, _ := remainingCapacity(shift, countActive(assignments, excludeID)); remaining <= 0 {
		return ErrShiftFull
	}
	return nil
}
