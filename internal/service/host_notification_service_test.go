package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"volunteer-hub/internal/dto"
	"volunteer-hub/internal/model"
)

// seedHosts ev-1 开启报名通知、关闭取消通知；主办人 host-1、协办人 co-1、群组 grp-1 所有者 owner-1
func seedHosts(s *mockStore) {
	ev := s.events["ev-1"]
	ev.RegisterNotifications = boolPtr(true)
	ev.CancelNotifications = boolPtr(false)
	ev.HostUserID = strPtr("host-1")
	ev.HostGroupID = strPtr("grp-1")

	s.eventHosts["ev-1"] = []string{"co-1", "host-1", "co-no-email"}
	s.groupMembers = []model.GroupMember{
		{GroupID: "grp-1", UserID: "owner-1", Role: model.GroupRoleOwner},
		{GroupID: "grp-1", UserID: "member-1", Role: "member"},
	}
	s.addProfile(&model.Profile{UserID: "host-1", Email: "host@example.com", FullName: "Hana Host"})
	s.addProfile(&model.Profile{UserID: "co-1", Email: "co@example.com"})
	s.addProfile(&model.Profile{UserID: "co-no-email", Email: " "})
	s.addProfile(&model.Profile{UserID: "owner-1", Email: "HOST@example.com"})
	s.addProfile(&model.Profile{UserID: "member-1", Email: "member@example.com"})
}

func setupTestHostNotificationService() (*hostNotificationService, *mockStore, *mockMailer) {
	store := newMockStore()
	seedShiftFixture(store)
	seedHosts(store)
	m := &mockMailer{}
	svc := &hostNotificationService{
		repo:    newMockRepository(store),
		mailer:  m,
		baseURL: "https://volunteer.example.org/",
		now:     func() time.Time { return testNow },
		logger:  zap.NewNop(),
	}
	return svc, store, m
}

func TestHostNotificationService_Send_InvalidInput(t *testing.T) {
	svc, _, _ := setupTestHostNotificationService()
	ctx := context.Background()

	if _, err := svc.Send(ctx, &dto.HostNotificationRequest{Type: "waitlist", AssignmentID: "asg-1"}); !errors.Is(err, ErrUnsupportedNotificationType) {
		t.Errorf("期望 ErrUnsupportedNotificationType，实际: %v", err)
	}
	if _, err := svc.Send(ctx, &dto.HostNotificationRequest{Type: "register"}); !errors.Is(err, ErrNoAssignmentIDs) {
		t.Errorf("期望 ErrNoAssignmentIDs，实际: %v", err)
	}
	if _, err := svc.Send(ctx, &dto.HostNotificationRequest{Type: "register", AssignmentIDs: []string{"nope-1", "nope-2"}}); !errors.Is(err, ErrNoNotificationContexts) {
		t.Errorf("期望 ErrNoNotificationContexts，实际: %v", err)
	}
}

func TestHostNotificationService_Send_Register(t *testing.T) {
	svc, store, m := setupTestHostNotificationService()

	resp, err := svc.Send(context.Background(), &dto.HostNotificationRequest{Type: "Register", AssignmentID: "asg-1"})
	if err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if resp.Events != 1 || resp.Sent != 2 || resp.Skipped != 0 {
		t.Errorf("期望 1 个活动、2 个收件人，实际 %+v", resp)
	}
	if len(m.sent) != 1 {
		t.Fatalf("期望发送 1 封邮件，实际 %d", len(m.sent))
	}

	msg := m.sent[0]
	// 主办人优先，owner-1 与主办人邮箱仅大小写不同被去重，空邮箱与普通成员不在列
	if strings.Join(msg.To, ",") != "host@example.com,co@example.com" {
		t.Errorf("收件人不正确: %v", msg.To)
	}
	if msg.Subject != "New volunteer signup: Spring Cleanup" {
		t.Errorf("主题不正确: %q", msg.Subject)
	}
	if msg.ReplyTo != "host@example.com" {
		t.Errorf("ReplyTo 应为活动联系邮箱，实际 %q", msg.ReplyTo)
	}
	if msg.Tags["volunteer_notification_type"] != "register" || msg.Tags["volunteer_event_id"] != "ev-1" {
		t.Errorf("标签不正确: %v", msg.Tags)
	}
	for _, want := range []string{"Vol One has signed up for the following shifts", "Check-in desk", "https://volunteer.example.org/volunteer/spring-cleanup/manage"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("正文应包含 %q:\n%s", want, msg.Text)
		}
	}
	if !strings.Contains(msg.HTML, "<strong>Vol One</strong>") {
		t.Errorf("HTML 正文应包含志愿者姓名:\n%s", msg.HTML)
	}

	if len(store.emailLogs) != 2 {
		t.Fatalf("期望 2 条发送记录，实际 %d", len(store.emailLogs))
	}
	for _, l := range store.emailLogs {
		if l.EmailType != model.EmailTypeHostRegister || l.Status != model.EmailStatusSent || l.SentAt == nil {
			t.Errorf("发送记录不正确: %+v", l)
		}
		if l.EventID == nil || *l.EventID != "ev-1" || l.AssignmentID == nil || *l.AssignmentID != "asg-1" {
			t.Errorf("发送记录关联不正确: %+v", l)
		}
	}
}

func TestHostNotificationService_Send_DisabledToggle(t *testing.T) {
	svc, store, m := setupTestHostNotificationService()

	resp, err := svc.Send(context.Background(), &dto.HostNotificationRequest{Type: "cancel", AssignmentID: "asg-1"})
	if err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if resp.Skipped != 1 || resp.Events != 0 || len(m.sent) != 0 {
		t.Errorf("取消通知关闭时应跳过，实际 %+v，邮件 %d", resp, len(m.sent))
	}

	// 未设置开关视为关闭
	store.events["ev-1"].RegisterNotifications = nil
	resp, _ = svc.Send(context.Background(), &dto.HostNotificationRequest{Type: "register", AssignmentID: "asg-1"})
	if resp.Skipped != 1 || len(m.sent) != 0 {
		t.Errorf("开关未设置时应跳过，实际 %+v", resp)
	}
}

func TestHostNotificationService_Send_NoRecipients(t *testing.T) {
	svc, store, m := setupTestHostNotificationService()
	ev := store.events["ev-1"]
	ev.HostUserID = nil
	ev.HostGroupID = nil
	store.eventHosts["ev-1"] = nil

	resp, err := svc.Send(context.Background(), &dto.HostNotificationRequest{Type: "register", AssignmentID: "asg-1"})
	if err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if resp.Skipped != 1 || len(m.sent) != 0 {
		t.Errorf("无收件人时应跳过，实际 %+v", resp)
	}
}

func TestHostNotificationService_Send_GroupsByEvent(t *testing.T) {
	svc, store, m := setupTestHostNotificationService()
	store.events["ev-2"].RegisterNotifications = boolPtr(true)
	store.events["ev-2"].HostUserID = strPtr("co-1")
	store.addSignup(&model.Signup{ID: "su-2", EventID: strPtr("ev-2"), VolunteerEmail: "vol@example.com"})
	store.addAssignment(&model.Assignment{ID: "asg-2", SignupID: "su-1", ShiftID: "sh-2", Status: "pending"})
	store.addAssignment(&model.Assignment{ID: "asg-3", SignupID: "su-2", ShiftID: "sh-other", Status: "pending"})

	resp, err := svc.Send(context.Background(), &dto.HostNotificationRequest{
		Type:          "register",
		AssignmentID:  "asg-1",
		AssignmentIDs: []string{"asg-2", "asg-1", "asg-3", "asg-missing"},
	})
	if err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if resp.Events != 2 || len(m.sent) != 2 {
		t.Fatalf("期望按活动发送 2 封，实际 %+v，邮件 %d", resp, len(m.sent))
	}
	first := m.sent[0].Text
	if strings.Count(first, "- Check-in desk:") != 2 {
		t.Errorf("ev-1 邮件应合并两个班次:\n%s", first)
	}
	if m.sent[1].To[0] != "co@example.com" || !strings.Contains(m.sent[1].Subject, "Food Drive") {
		t.Errorf("ev-2 邮件不正确: %+v", m.sent[1])
	}
}

func TestHostNotificationService_Send_MailerFailureLogged(t *testing.T) {
	svc, store, m := setupTestHostNotificationService()
	m.err = errors.New("smtp: 421 service not available")

	resp, err := svc.Send(context.Background(), &dto.HostNotificationRequest{Type: "register", AssignmentID: "asg-1"})
	if err != nil {
		t.Fatalf("单个活动发送失败不应返回错误: %v", err)
	}
	if resp.Events != 0 || resp.Sent != 0 {
		t.Errorf("发送失败不应计数，实际 %+v", resp)
	}
	if len(store.emailLogs) == 0 {
		t.Fatal("发送失败也应写入记录")
	}
	for _, l := range store.emailLogs {
		if l.Status != model.EmailStatusFailed || l.SentAt != nil || !strings.Contains(l.ErrorMessage, "421") {
			t.Errorf("失败记录不正确: %+v", l)
		}
	}
}

func TestFormatShiftWindow(t *testing.T) {
	start := time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)
	shift := &model.Shift{StartsAt: &start, EndsAt: timePtr(start.Add(2 * time.Hour)), Timezone: "America/New_York"}

	if got := FormatShiftWindow(shift, nil); got != "Sat, Mar 14 • 1:00 PM – 3:00 PM" {
		t.Errorf("时区换算不正确: %q", got)
	}

	noEnd := &model.Shift{StartsAt: &start}
	if got := FormatShiftWindow(noEnd, &model.Event{Timezone: "Not/AZone"}); got != "Sat, Mar 14" {
		t.Errorf("无效时区应回退 UTC 并只显示日期，实际 %q", got)
	}
	if got := FormatShiftWindow(&model.Shift{}, nil); got != "" {
		t.Errorf("无时间时应为空，实际 %q", got)
	}
}

func TestBuildManageURL(t *testing.T) {
	if got := BuildManageURL("https://x.org/", &model.Event{Slug: "beach day"}); got != "https://x.org/volunteer/beach%20day/manage" {
		t.Errorf("slug 应转义，实际 %q", got)
	}
	if got := BuildManageURL("https://x.org", nil); got != "https://x.org/volunteer/shifts" {
		t.Errorf("无活动应回退我的班次页，实际 %q", got)
	}
	if got := BuildManageURL("", &model.Event{Slug: "a"}); got != "" {
		t.Errorf("无 baseURL 时应为空，实际 %q", got)
	}
}
