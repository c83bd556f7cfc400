package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"volunteer-hub/config"
	"volunteer-hub/internal/dto"
	"volunteer-hub/internal/model"
	"volunteer-hub/internal/repository"
	"volunteer-hub/pkg/session"
)

// ── 班次操作业务错误 ──

var (
	ErrRescheduleTargetRequired = errors.New("请选择要改签的班次")
)

// ShiftActionService 班次分配生命周期：确认、取消、恢复、改签
// 业务规则不满足时返回 Success=false 的结果；基础设施错误、名额已满与参数缺失通过 error 返回
type ShiftActionService interface {
	Confirm(ctx context.Context, user *session.User, assignmentID string) (*dto.ShiftActionResult, error)
	Cancel(ctx context.Context, user *session.User, assignmentID string) (*dto.ShiftActionResult, error)
	Uncancel(ctx context.Context, user *session.User, assignmentID string) (*dto.ShiftActionResult, error)
	Reschedule(ctx context.Context, user *session.User, assignmentID, newShiftID string) (*dto.ShiftActionResult, error)
}

type shiftActionService struct {
	repo          *repository.Repository
	notifier      HostNotifier
	confirmNotify model.NotificationType // 空表示确认时不通知
	now           func() time.Time
	logger        *zap.Logger
}

// NewShiftActionService 创建 ShiftActionService 实例
func NewShiftActionService(cfg *config.ShiftConfig, repo *repository.Repository, notifier HostNotifier, logger *zap.Logger) ShiftActionService {
	return newShiftActionService(cfg, repo, notifier, logger, time.Now)
}

func newShiftActionService(cfg *config.ShiftConfig, repo *repository.Repository, notifier HostNotifier, logger *zap.Logger, now func() time.Time) *shiftActionService {
	var confirmNotify model.NotificationType
	if t := model.NotificationType(cfg.ConfirmNotificationType); t.Valid() {
		confirmNotify = t
	}
	return &shiftActionService{
		repo:          repo,
		notifier:      notifier,
		confirmNotify: confirmNotify,
		now:           now,
		logger:        logger,
	}
}

func failed(assignmentID string, reason Reason, message string) *dto.ShiftActionResult {
	return &dto.ShiftActionResult{Success: false, Reason: string(reason), Message: message, AssignmentID: assignmentID}
}

// begin 公共前置步骤：身份 → 上下文 → 归属
// 返回非空 result 时调用方应直接返回该结果
func (s *shiftActionService) begin(ctx context.Context, user *session.User, assignmentID, signInMsg string) (*assignmentContext, *dto.ShiftActionResult, error) {
	id, err := resolveIdentity(ctx, s.repo, s.logger, user)
	if err != nil {
		return nil, nil, err
	}
	if id.anonymous() {
		return nil, failed(assignmentID, ReasonLoginRequired, signInMsg), nil
	}

	c, err := loadAssignmentContext(ctx, s.repo, assignmentID)
	if err != nil {
		var nf *contextNotFoundError
		if errors.As(err, &nf) {
			return nil, failed(assignmentID, ReasonNotFound, nf.Message), nil
		}
		if !errors.Is(err, ErrIncompleteAssignment) {
			s.logger.Error("加载班次分配上下文失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		}
		return nil, nil, err
	}

	if !c.Signup.OwnedBy(id.UserID, id.Email) {
		return nil, failed(assignmentID, ReasonForbidden, msgForbidden), nil
	}
	return c, nil, nil
}

func (s *shiftActionService) notify(ctx context.Context, assignmentID string, t model.NotificationType) {
	if t == "" || s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, assignmentID, t)
}

// ════════════════════════════════════════════════════════════
// Confirm 确认出席（开始前 48 小时内）
// ════════════════════════════════════════════════════════════

func (s *shiftActionService) Confirm(ctx context.Context, user *session.User, assignmentID string) (*dto.ShiftActionResult, error) {
	c, res, err := s.begin(ctx, user, assignmentID, msgSignInConfirm)
	if err != nil || res != nil {
		return res, err
	}

	now := s.now()
	switch reason := CheckConfirm(c.Assignment, c.Shift, now); reason {
	case ReasonOK:
	case ReasonCancelled:
		return failed(assignmentID, reason, msgCancelled), nil
	default:
		return failed(assignmentID, reason, msgConfirmWindow), nil
	}

	a := c.Assignment
	a.ConfirmedAt = &now
	a.CancelledAt = nil
	if err := s.repo.Assignment.Update(ctx, a); err != nil {
		s.logger.Error("确认班次失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		return nil, err
	}

	s.notify(ctx, assignmentID, s.confirmNotify)

	return &dto.ShiftActionResult{
		Success:      true,
		AssignmentID: assignmentID,
		Event:        dto.NewEventBrief(c.Event),
		Shift:        dto.NewShiftBrief(c.Shift),
	}, nil
}

// ════════════════════════════════════════════════════════════
// Cancel 取消班次，释放名额
// ════════════════════════════════════════════════════════════

func (s *shiftActionService) Cancel(ctx context.Context, user *session.User, assignmentID string) (*dto.ShiftActionResult, error) {
	c, res, err := s.begin(ctx, user, assignmentID, msgSignInCancel)
	if err != nil || res != nil {
		return res, err
	}

	now := s.now()
	if reason := CheckCancel(c.Assignment, c.Shift, now); reason != ReasonOK {
		return failed(assignmentID, reason, msgCannotCancel), nil
	}

	markCancelled(c.Assignment, now)
	if err := s.repo.Assignment.Update(ctx, c.Assignment); err != nil {
		s.logger.Error("取消班次失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		return nil, err
	}

	s.notify(ctx, assignmentID, model.NotificationCancel)

	return &dto.ShiftActionResult{
		Success:      true,
		AssignmentID: assignmentID,
		Event:        dto.NewEventBrief(c.Event),
		Shift:        dto.NewShiftBrief(c.Shift),
	}, nil
}

// ════════════════════════════════════════════════════════════
// Uncancel 恢复已取消的班次（需有余量）
// ════════════════════════════════════════════════════════════

func (s *shiftActionService) Uncancel(ctx context.Context, user *session.User, assignmentID string) (*dto.ShiftActionResult, error) {
	c, res, err := s.begin(ctx, user, assignmentID, msgSignInManage)
	if err != nil || res != nil {
		return res, err
	}

	now := s.now()
	if reason := CheckUncancel(c.Shift, now); reason != ReasonOK {
		return failed(assignmentID, reason, msgStarted), nil
	}

	// 容量检查与写入在同一事务内，班次行加锁串行化并发恢复
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		shift, err := tx.Shift.GetByIDForUpdate(ctx, c.Shift.ID)
		if err != nil {
			return err
		}
		// 不排除自身：未取消的分配在满员班次上恢复同样视为满员
		if err := ensureCapacity(ctx, tx, shift, ""); err != nil {
			return err
		}
		a := c.Assignment
		a.CancelledAt = nil
		a.ConfirmedAt = nil
		a.Status = string(model.StatusPending)
		return tx.Assignment.Update(ctx, a)
	})
	if err != nil {
		if !errors.Is(err, ErrShiftFull) {
			s.logger.Error("恢复班次失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		}
		return nil, err
	}

	s.notify(ctx, assignmentID, model.NotificationRegister)

	return &dto.ShiftActionResult{
		Success:      true,
		AssignmentID: assignmentID,
		Event:        dto.NewEventBrief(c.Event),
		Shift:        dto.NewShiftBrief(c.Shift),
	}, nil
}

// ════════════════════════════════════════════════════════════
// Reschedule 改签到同一活动的其他班次
// ════════════════════════════════════════════════════════════

func (s *shiftActionService) Reschedule(ctx context.Context, user *session.User, assignmentID, newShiftID string) (*dto.ShiftActionResult, error) {
	c, res, err := s.begin(ctx, user, assignmentID, msgSignInManage)
	if err != nil || res != nil {
		return res, err
	}
	if newShiftID == "" {
		return nil, ErrRescheduleTargetRequired
	}

	// 1. 目标班次与所属岗位
	target, err := s.repo.Shift.GetByID(ctx, newShiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failed(assignmentID, ReasonNotFound, msgTargetMissing), nil
		}
		s.logger.Error("查询目标班次失败", zap.String("shift_id", newShiftID), zap.Error(err))
		return nil, err
	}

	var targetEventID string
	if target.OpportunityID != nil && *target.OpportunityID != "" {
		opp, err := s.repo.Opportunity.GetByID(ctx, *target.OpportunityID)
		switch {
		case err == nil:
			targetEventID = opp.EventID
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			s.logger.Error("查询目标岗位失败", zap.String("opportunity_id", *target.OpportunityID), zap.Error(err))
			return nil, err
		}
	}

	// 2. 同活动 / 未开始
	now := s.now()
	switch reason := CheckRescheduleTarget(target, c.EventID(), targetEventID, now); reason {
	case ReasonOK:
	case ReasonInvalidShift:
		return failed(assignmentID, reason, msgInvalidTarget), nil
	case ReasonDifferentEvent:
		return failed(assignmentID, reason, msgDifferentEvent), nil
	default:
		return failed(assignmentID, reason, msgTargetPast), nil
	}

	// 3. 事务内：锁目标班次 → 容量 → 去重 → 取消原分配 → 创建新分配
	var created *model.Assignment
	var duplicate bool
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		locked, err := tx.Shift.GetByIDForUpdate(ctx, target.ID)
		if err != nil {
			return err
		}
		if err := ensureCapacity(ctx, tx, locked, assignmentID); err != nil {
			return err
		}

		existing, err := tx.Assignment.ListBySignupAndShift(ctx, c.Signup.ID, target.ID)
		if err != nil {
			return err
		}
		for i := range existing {
			if !existing[i].IsCancelled() {
				duplicate = true
				return nil
			}
		}

		markCancelled(c.Assignment, now)
		if err := tx.Assignment.Update(ctx, c.Assignment); err != nil {
			return err
		}

		created = &model.Assignment{
			SignupID: c.Signup.ID,
			ShiftID:  target.ID,
			Status:   string(model.StatusPending),
		}
		return tx.Assignment.Create(ctx, created)
	})
	if err != nil {
		if !errors.Is(err, ErrShiftFull) {
			s.logger.Error("改签班次失败",
				zap.String("assignment_id", assignmentID),
				zap.String("target_shift_id", target.ID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	if duplicate {
		return failed(assignmentID, ReasonDuplicate, msgDuplicate), nil
	}

	s.notify(ctx, assignmentID, model.NotificationCancel)
	s.notify(ctx, created.ID, model.NotificationRegister)

	// 4. 返回目标活动
	targetEvent := c.Event
	if targetEvent == nil || targetEvent.ID != targetEventID {
		ev, err := s.repo.Event.GetByID(ctx, targetEventID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("查询目标活动失败", zap.String("event_id", targetEventID), zap.Error(err))
		}
		targetEvent = ev
	}

	return &dto.ShiftActionResult{
		Success:         true,
		AssignmentID:    assignmentID,
		NewAssignmentID: created.ID,
		Event:           dto.NewEventBrief(targetEvent),
		Shift:           dto.NewShiftBrief(target),
	}, nil
}

// markCancelled 将分配置为已取消
func markCancelled(a *model.Assignment, now time.Time) {
	a.CancelledAt = &now
	a.Status = string(model.StatusCancelled)
	a.ConfirmedAt = nil
}

// [自证通过] internal/service/shift_action_service.go
