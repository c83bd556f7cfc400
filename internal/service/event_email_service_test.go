package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"volunteer-hub/internal/model"
)

func setupTestEventEmailService() (*eventEmailService, *mockStore, *mockMailer) {
	store := newMockStore()
	seedShiftFixture(store)
	ev := store.events["ev-1"]
	ev.Status = "published"
	ev.EventStart = timePtr(testNow.Add(24 * time.Hour))
	ev.EventEnd = timePtr(testNow.Add(27 * time.Hour))
	ev.LocationName = "Riverside Park"

	m := &mockMailer{}
	svc := &eventEmailService{
		repo:    newMockRepository(store),
		mailer:  m,
		baseURL: "https://volunteer.example.org/",
		now:     func() time.Time { return testNow },
		logger:  zap.NewNop(),
	}
	return svc, store, m
}

// dayBefore 活动开始前 24 小时发送，即 testNow 到期
func dayBefore(id string) *model.EventEmail {
	return &model.EventEmail{
		ID:                id,
		EventID:           "ev-1",
		Subject:           "Reminder: {{event_title}}",
		Body:              "Hi {{volunteer_name}},\n\nSee you at {{event_location}}.\n\n{{shift_details_block}}",
		SendOffsetMinutes: 24 * 60,
	}
}

func TestEventEmailService_SendsDueTemplateOnce(t *testing.T) {
	svc, store, m := setupTestEventEmailService()
	tpl := store.addEventEmail(dayBefore("tpl-1"))
	ctx := context.Background()

	results, err := svc.SendDue(ctx)
	if err != nil {
		t.Fatalf("SendDue 应成功: %v", err)
	}
	if len(results) != 1 || results[0].Sent != 1 || results[0].Recipients != 1 {
		t.Fatalf("期望 1 个模板发送 1 封，实际 %+v", results)
	}
	if len(m.sent) != 1 {
		t.Fatalf("期望发送 1 封邮件，实际 %d", len(m.sent))
	}

	msg := m.sent[0]
	if len(msg.To) != 1 || msg.To[0] != "vol@example.com" {
		t.Errorf("收件人不正确: %v", msg.To)
	}
	if msg.Subject != "Reminder: Spring Cleanup" {
		t.Errorf("主题不正确: %q", msg.Subject)
	}
	if msg.ReplyTo != "host@example.com" {
		t.Errorf("回复地址应为活动联系邮箱，实际 %q", msg.ReplyTo)
	}
	for _, want := range []string{"Hi Vol One,", "See you at Riverside Park.", "Shift 1: Check-in desk"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("纯文本缺少 %q:\n%s", want, msg.Text)
		}
	}
	if !strings.Contains(msg.HTML, "<p>Hi Vol One,</p>") || !strings.Contains(msg.HTML, "Your shift</h4>") {
		t.Errorf("HTML 渲染不正确:\n%s", msg.HTML)
	}
	if strings.Contains(msg.HTML, "MERGEBLOCK") {
		t.Errorf("块级占位符应被替换:\n%s", msg.HTML)
	}
	if msg.Tags["volunteer_email_template_id"] != "tpl-1" || msg.Tags["volunteer_email_type"] != "custom" {
		t.Errorf("标签不正确: %v", msg.Tags)
	}

	if len(store.emailLogs) != 1 {
		t.Fatalf("期望 1 条发送记录，实际 %d", len(store.emailLogs))
	}
	log := store.emailLogs[0]
	if log.EmailType != model.EmailTypeScheduled || log.TemplateID == nil || *log.TemplateID != "tpl-1" || log.Status != model.EmailStatusSent {
		t.Errorf("发送记录不正确: %+v", log)
	}
	if tpl.LastSentAt == nil || !tpl.LastSentAt.Equal(testNow) {
		t.Errorf("last_sent_at 应更新为当前时间，实际 %v", tpl.LastSentAt)
	}

	results, err = svc.SendDue(ctx)
	if err != nil {
		t.Fatalf("再次执行应成功: %v", err)
	}
	if len(results) != 0 || len(m.sent) != 1 {
		t.Errorf("已发送的模板不应重复发送，实际 %+v", results)
	}
}

func TestEventEmailService_NotYetDue(t *testing.T) {
	svc, store, m := setupTestEventEmailService()
	tpl := dayBefore("tpl-1")
	tpl.SendOffsetMinutes = 60
	store.addEventEmail(tpl)

	results, err := svc.SendDue(context.Background())
	if err != nil {
		t.Fatalf("SendDue 应成功: %v", err)
	}
	if len(results) != 0 || len(m.sent) != 0 || tpl.LastSentAt != nil {
		t.Errorf("未到发送时间不应发送，实际 %+v", results)
	}
}

func TestEventEmailService_OnlyApprovedOrConfirmedRecipients(t *testing.T) {
	svc, store, m := setupTestEventEmailService()
	store.addEventEmail(dayBefore("tpl-1"))

	store.addSignup(&model.Signup{ID: "su-2", EventID: strPtr("ev-1"), VolunteerEmail: "pending@example.com"})
	store.addAssignment(&model.Assignment{ID: "asg-2", SignupID: "su-2", ShiftID: "sh-1", Status: "pending"})
	store.addSignup(&model.Signup{ID: "su-3", EventID: strPtr("ev-1"), VolunteerEmail: "gone@example.com"})
	store.addAssignment(&model.Assignment{ID: "asg-3", SignupID: "su-3", ShiftID: "sh-1", Status: "approved", CancelledAt: timePtr(testNow)})
	store.addSignup(&model.Signup{ID: "su-4", EventID: strPtr("ev-1"), VolunteerEmail: "ok@example.com"})
	store.addAssignment(&model.Assignment{ID: "asg-4", SignupID: "su-4", ShiftID: "sh-2", Status: "confirmed"})
	store.addSignup(&model.Signup{ID: "su-5", EventID: strPtr("ev-1"), VolunteerEmail: "wait@example.com"})
	store.addAssignment(&model.Assignment{ID: "asg-5", SignupID: "su-5", ShiftID: "sh-2", Status: "waitlisted"})

	if _, err := svc.SendDue(context.Background()); err != nil {
		t.Fatalf("SendDue 应成功: %v", err)
	}
	var got []string
	for _, msg := range m.sent {
		got = append(got, msg.To[0])
	}
	if strings.Join(got, ",") != "vol@example.com,ok@example.com" {
		t.Errorf("收件人应只包含 approved/confirmed 的志愿者，实际 %v", got)
	}
}

func TestEventEmailService_MergesSignupsBySameEmail(t *testing.T) {
	svc, store, m := setupTestEventEmailService()
	store.addEventEmail(dayBefore("tpl-1"))
	store.addSignup(&model.Signup{ID: "su-2", EventID: strPtr("ev-1"), VolunteerEmail: "VOL@example.com"})
	store.addAssignment(&model.Assignment{ID: "asg-2", SignupID: "su-2", ShiftID: "sh-2", Status: "approved"})

	if _, err := svc.SendDue(context.Background()); err != nil {
		t.Fatalf("SendDue 应成功: %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("同一邮箱只应收到 1 封，实际 %d", len(m.sent))
	}
	if !strings.Contains(m.sent[0].Text, "Shift 2:") {
		t.Errorf("合并后的邮件应列出两个班次:\n%s", m.sent[0].Text)
	}
}

func TestEventEmailService_RequireConfirmationAddsLinks(t *testing.T) {
	svc, store, m := setupTestEventEmailService()
	tpl := dayBefore("tpl-1")
	tpl.RequireConfirmation = true
	store.addEventEmail(tpl)

	if _, err := svc.SendDue(context.Background()); err != nil {
		t.Fatalf("SendDue 应成功: %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("期望发送 1 封，实际 %d", len(m.sent))
	}
	confirmURL := "https://volunteer.example.org/volunteer/shifts/asg-1/confirm"
	if !strings.Contains(m.sent[0].Text, "Confirm: "+confirmURL) {
		t.Errorf("纯文本应包含确认链接:\n%s", m.sent[0].Text)
	}
	if !strings.Contains(m.sent[0].HTML, `href="`+confirmURL+`"`) {
		t.Errorf("HTML 应包含确认按钮:\n%s", m.sent[0].HTML)
	}
}

func TestEventEmailService_SendFailureKeepsTemplateDue(t *testing.T) {
	svc, store, m := setupTestEventEmailService()
	m.err = errors.New("smtp down")
	tpl := store.addEventEmail(dayBefore("tpl-1"))

	results, err := svc.SendDue(context.Background())
	if err != nil {
		t.Fatalf("SendDue 应成功: %v", err)
	}
	if len(results) != 1 || results[0].Failed != 1 || results[0].Sent != 0 {
		t.Errorf("期望 1 封失败，实际 %+v", results)
	}
	if tpl.LastSentAt != nil {
		t.Error("全部失败时不应更新 last_sent_at")
	}
	if len(store.emailLogs) != 1 || store.emailLogs[0].Status != model.EmailStatusFailed {
		t.Errorf("应记录失败的发送，实际 %+v", store.emailLogs)
	}
}

func TestEventEmailService_StaleEventMarkedWithoutRecipients(t *testing.T) {
	svc, store, m := setupTestEventEmailService()
	ev := store.events["ev-1"]
	ev.EventStart = timePtr(testNow.Add(-72 * time.Hour))
	ev.EventEnd = timePtr(testNow.Add(-48 * time.Hour))
	store.assignments["asg-1"].Status = "pending"
	tpl := store.addEventEmail(dayBefore("tpl-1"))

	results, err := svc.SendDue(context.Background())
	if err != nil {
		t.Fatalf("SendDue 应成功: %v", err)
	}
	if len(results) != 1 || results[0].Recipients != 0 || len(m.sent) != 0 {
		t.Errorf("不应有收件人，实际 %+v", results)
	}
	if tpl.LastSentAt == nil {
		t.Error("活动结束超过一天后应标记为已发送")
	}
}

func TestEventEmailService_NoRecipientsBeforeEventStaysDue(t *testing.T) {
	svc, store, _ := setupTestEventEmailService()
	store.assignments["asg-1"].Status = "pending"
	tpl := store.addEventEmail(dayBefore("tpl-1"))

	if _, err := svc.SendDue(context.Background()); err != nil {
		t.Fatalf("SendDue 应成功: %v", err)
	}
	if tpl.LastSentAt != nil {
		t.Error("活动未结束且无人可发时不应标记已发送")
	}
}

func TestIsEventEmailDue(t *testing.T) {
	start := testNow.Add(2 * time.Hour)
	published := &model.Event{ID: "ev-1", Status: "published", EventStart: &start}

	tests := []struct {
		name  string
		tpl   model.EventEmail
		event *model.Event
		want  bool
	}{
		{"到期", model.EventEmail{Subject: "s", Body: "b", SendOffsetMinutes: 180}, published, true},
		{"未到期", model.EventEmail{Subject: "s", Body: "b", SendOffsetMinutes: 60}, published, false},
		{"活动开始后发送", model.EventEmail{Subject: "s", Body: "b", SendOffsetMinutes: -60}, published, false},
		{"缺少主题", model.EventEmail{Body: "b", SendOffsetMinutes: 180}, published, false},
		{"缺少正文", model.EventEmail{Subject: "s", Body: "  ", SendOffsetMinutes: 180}, published, false},
		{"草稿活动", model.EventEmail{Subject: "s", Body: "b", SendOffsetMinutes: 180}, &model.Event{Status: "draft", EventStart: &start}, false},
		{"活动无开始时间", model.EventEmail{Subject: "s", Body: "b"}, &model.Event{Status: "published"}, false},
		{"本轮已发送", model.EventEmail{Subject: "s", Body: "b", SendOffsetMinutes: 180, LastSentAt: timePtr(testNow.Add(-90 * time.Minute))}, published, false},
		{"上一轮发送", model.EventEmail{Subject: "s", Body: "b", SendOffsetMinutes: 180, LastSentAt: timePtr(testNow.Add(-3 * time.Hour))}, published, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEventEmailDue(&tt.tpl, tt.event, testNow); got != tt.want {
				t.Errorf("IsEventEmailDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ── 合并标签 ──

func testMergeContext() *mergeContext {
	start := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC)
	return &mergeContext{
		Event: &model.Event{
			Title: "Spring Cleanup", Timezone: "UTC",
			EventStart: &start, EventEnd: &end,
			LocationName: "Riverside Park", LocationAddress: "1 River Rd",
		},
		VolunteerName: "Vol One",
		PortalURL:     "https://volunteer.example.org/volunteer/shifts",
	}
}

func TestRenderMergeSubject(t *testing.T) {
	c := testMergeContext()
	got := RenderMergeSubject("  {{event_title}} on {{event_day_time}}\n", c)
	if got != "Spring Cleanup on Mar 11, 2026, 3:00 PM → 6:00 PM" {
		t.Errorf("主题不正确: %q", got)
	}

	c.Event.Title = ""
	if got := RenderMergeSubject("{{event_title}}", c); got != "Volunteer event" {
		t.Errorf("标题为空时应使用默认值，实际 %q", got)
	}
}

func TestRenderMergeBody_EscapesInlineValues(t *testing.T) {
	c := testMergeContext()
	c.VolunteerName = "<b>Jo</b> & co"

	text, html, err := RenderMergeBody("Hi **{{volunteer_name}}**, meet at {{event_location}}.", c)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	if text != "Hi **<b>Jo</b> & co**, meet at Riverside Park, 1 River Rd." {
		t.Errorf("纯文本不正确: %q", text)
	}
	if strings.Contains(html, "<b>Jo</b>") || !strings.Contains(html, "&lt;b&gt;Jo&lt;/b&gt;") {
		t.Errorf("HTML 应转义志愿者姓名: %s", html)
	}
	if !strings.Contains(html, "<strong>") {
		t.Errorf("Markdown 应被渲染: %s", html)
	}
}

func TestRenderMergeBody_BlocksAreNotWrapped(t *testing.T) {
	c := testMergeContext()
	_, html, err := RenderMergeBody("Intro\n\n{{event_details_block}}\n\n{{volunteer_portal_block}}", c)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	if strings.Contains(html, "<p><section") {
		t.Errorf("块级内容不应包在段落内: %s", html)
	}
	for _, want := range []string{"Event details", "Riverside Park, 1 River Rd", "Open volunteer portal"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML 缺少 %q: %s", want, html)
		}
	}
}

func TestRenderMergeBody_EmptyShiftsFallback(t *testing.T) {
	c := testMergeContext()
	text, html, err := RenderMergeBody("{{shift_details_block}}", c)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	if text != "Shift assignments will appear once confirmed." {
		t.Errorf("纯文本不正确: %q", text)
	}
	if !strings.Contains(html, "Shift assignments will appear here once confirmed.") {
		t.Errorf("HTML 不正确: %s", html)
	}
}
