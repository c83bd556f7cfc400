package model

import (
	"strings"
	"time"
)

// EventEmail 活动定时邮件模板表，对应 volunteer_event_emails
// 发送时间 = 活动开始时间 - SendOffsetMinutes，负偏移表示活动开始之后
type EventEmail struct {
	ID                  string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EventID             string     `gorm:"type:uuid;not null;index"                       json:"event_id"`
	EmailType           string     `gorm:"type:varchar(50);not null;default:'custom'"     json:"email_type"`
	Subject             string     `gorm:"type:varchar(500);not null"                     json:"subject"`
	Body                string     `gorm:"type:text;not null"                             json:"body"`
	SendOffsetMinutes   int        `gorm:"not null;default:0"                             json:"send_offset_minutes"`
	RequireConfirmation bool       `gorm:"not null;default:false"                         json:"require_confirmation"`
	LastSentAt          *time.Time `json:"last_sent_at,omitempty"`
	Event               *Event     `gorm:"foreignKey:EventID"                             json:"event,omitempty"`
	BaseModel
}

// TableName 指定表名
func (EventEmail) TableName() string { return "volunteer_event_emails" }

// ScheduledAt 计划发送时间；活动没有开始时间时 ok=false
func (e *EventEmail) ScheduledAt(eventStart *time.Time) (at time.Time, ok bool) {
	if eventStart == nil {
		return time.Time{}, false
	}
	return eventStart.Add(-time.Duration(e.SendOffsetMinutes) * time.Minute), true
}

// TypeTag 邮件类型标签，空值归为 custom
func (e *EventEmail) TypeTag() string {
	if t := strings.ToLower(strings.TrimSpace(e.EmailType)); t != "" {
		return t
	}
	return "custom"
}

// Complete 主题和正文都不为空
func (e *EventEmail) Complete() bool {
	return strings.TrimSpace(e.Subject) != "" && strings.TrimSpace(e.Body) != ""
}
