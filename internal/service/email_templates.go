package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"volunteer-hub/internal/model"
)

// ── 时间格式化 ──

// resolveLocation 依次使用班次时区、活动时区，最后回退 UTC
func resolveLocation(shift *model.Shift, event *model.Event) *time.Location {
	for _, name := range []string{shiftTimezone(shift), eventTimezone(event)} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

func shiftTimezone(s *model.Shift) string {
	if s == nil {
		return ""
	}
	return s.Timezone
}

func eventTimezone(e *model.Event) string {
	if e == nil {
		return ""
	}
	return e.Timezone
}

// FormatShiftWindow 格式化班次时间段，如 "Mon, Jan 2 • 3:00 PM – 5:00 PM"
func FormatShiftWindow(shift *model.Shift, event *model.Event) string {
	if shift == nil {
		return ""
	}
	loc := resolveLocation(shift, event)

	var dateLabel string
	if anchor := firstTime(shift.StartsAt, shift.EndsAt); anchor != nil {
		dateLabel = anchor.In(loc).Format("Mon, Jan 2")
	}
	var startTime, endTime string
	if shift.StartsAt != nil {
		startTime = shift.StartsAt.In(loc).Format("3:04 PM")
	}
	if shift.EndsAt != nil {
		endTime = shift.EndsAt.In(loc).Format("3:04 PM")
	}

	if startTime != "" && endTime != "" {
		return fmt.Sprintf("%s • %s – %s", dateLabel, startTime, endTime)
	}
	for _, s := range []string{dateLabel, startTime, endTime} {
		if s != "" {
			return s
		}
	}
	return ""
}

// BuildManageURL 活动管理页地址，无 slug 时回退到我的班次页
func BuildManageURL(baseURL string, event *model.Event) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return ""
	}
	if event != nil && strings.TrimSpace(event.Slug) != "" {
		return fmt.Sprintf("%s/volunteer/%s/manage", base, url.PathEscape(strings.TrimSpace(event.Slug)))
	}
	return base + "/volunteer/shifts"
}

// ── 主办方通知邮件 ──

type hostEmailLine struct {
	Opportunity string
	Window      string
}

type hostEmailData struct {
	Action         string
	EventTitle     string
	VolunteerName  string
	VolunteerEmail string
	VolunteerPhone string
	Lines          []hostEmailLine
	ManageURL      string
}

func (d hostEmailData) HasContact() bool {
	return d.VolunteerName != "" || d.VolunteerEmail != "" || d.VolunteerPhone != ""
}

var hostEmailText = texttemplate.Must(texttemplate.New("host_text").Parse(`Hello host,

{{.VolunteerName}} {{.Action}} for {{.EventTitle}}:
{{range .Lines}}- {{.Opportunity}}: {{.Window}}
{{end}}{{if .HasContact}}
Volunteer contact:
{{if .VolunteerName}}Name: {{.VolunteerName}}
{{end}}{{if .VolunteerEmail}}Email: {{.VolunteerEmail}}
{{end}}{{if .VolunteerPhone}}Phone: {{.VolunteerPhone}}
{{end}}{{end}}{{if .ManageURL}}
Review the roster: {{.ManageURL}}
{{end}}
Thanks for supporting your volunteer team!
`))

var hostEmailHTML = htmltemplate.Must(htmltemplate.New("host_html").Parse(`<p>Hello host,</p>
<p><strong>{{.VolunteerName}}</strong> {{.Action}} for {{.EventTitle}}:</p><ul>{{range .Lines}}<li><strong>{{.Opportunity}}</strong>: {{.Window}}</li>{{end}}</ul>
{{if .HasContact}}<p><strong>Volunteer contact</strong><br />{{if .VolunteerName}}<strong>Name:</strong> {{.VolunteerName}}<br />{{end}}{{if .VolunteerEmail}}<strong>Email:</strong> {{.VolunteerEmail}}<br />{{end}}{{if .VolunteerPhone}}<strong>Phone:</strong> {{.VolunteerPhone}}{{end}}</p>
{{end}}{{if .ManageURL}}<p><a href="{{.ManageURL}}" style="color:#2563eb;text-decoration:underline;">Open event management</a></p>
{{end}}<p>Thanks for supporting your volunteer team!</p>
`))

// renderedEmail 渲染后的邮件内容
type renderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

// renderHostEmail 渲染主办方通知邮件；contexts 属于同一活动
func renderHostEmail(t model.NotificationType, event *model.Event, contexts []*assignmentContext, baseURL string) (*renderedEmail, error) {
	title := strings.TrimSpace(event.Title)
	if title == "" {
		title = "Volunteer event"
	}

	data := hostEmailData{
		Action:     "has cancelled the following shifts",
		EventTitle: title,
		ManageURL:  BuildManageURL(baseURL, event),
	}
	subjectPrefix := "Volunteer cancellation"
	if t == model.NotificationRegister {
		data.Action = "has signed up for the following shifts"
		subjectPrefix = "New volunteer signup"
	}

	if len(contexts) > 0 && contexts[0].Signup != nil {
		signup := contexts[0].Signup
		data.VolunteerName = strings.TrimSpace(signup.VolunteerName)
		data.VolunteerEmail = strings.TrimSpace(signup.VolunteerEmail)
		data.VolunteerPhone = strings.TrimSpace(signup.VolunteerPhone)
	}
	for _, c := range contexts {
		oppTitle := "Volunteer shift"
		if c.Opportunity != nil && strings.TrimSpace(c.Opportunity.Title) != "" {
			oppTitle = strings.TrimSpace(c.Opportunity.Title)
		}
		data.Lines = append(data.Lines, hostEmailLine{Opportunity: oppTitle, Window: FormatShiftWindow(c.Shift, event)})
	}

	var text, html bytes.Buffer
	if err := hostEmailText.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("渲染纯文本邮件失败: %w", err)
	}
	if err := hostEmailHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("渲染 HTML 邮件失败: %w", err)
	}
	return &renderedEmail{
		Subject: fmt.Sprintf("%s: %s", subjectPrefix, title),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// ── 确认提醒邮件 ──

type reminderEmailData struct {
	VolunteerName string
	EventTitle    string
	Opportunity   string
	Window        string
	ConfirmURL    string
	WindowHours   int
}

var reminderEmailText = texttemplate.Must(texttemplate.New("reminder_text").Parse(`Hi{{if .VolunteerName}} {{.VolunteerName}}{{end}},

Your volunteer shift for {{.EventTitle}} is coming up:
- {{.Opportunity}}: {{.Window}}

Please confirm you can still make it: {{.ConfirmURL}}

Shifts can be confirmed within {{.WindowHours}} hours of the start time.
`))

var reminderEmailHTML = htmltemplate.Must(htmltemplate.New("reminder_html").Parse(`<p>Hi{{if .VolunteerName}} {{.VolunteerName}}{{end}},</p>
<p>Your volunteer shift for <strong>{{.EventTitle}}</strong> is coming up:</p>
<ul><li><strong>{{.Opportunity}}</strong>: {{.Window}}</li></ul>
<p><a href="{{.ConfirmURL}}" style="color:#2563eb;text-decoration:underline;">Confirm my shift</a></p>
<p>Shifts can be confirmed within {{.WindowHours}} hours of the start time.</p>
`))

// renderReminderEmail 渲染确认提醒邮件
func renderReminderEmail(c *assignmentContext, baseURL string) (*renderedEmail, error) {
	title := "Volunteer event"
	if c.Event != nil && strings.TrimSpace(c.Event.Title) != "" {
		title = strings.TrimSpace(c.Event.Title)
	}
	oppTitle := "Volunteer shift"
	if c.Opportunity != nil && strings.TrimSpace(c.Opportunity.Title) != "" {
		oppTitle = strings.TrimSpace(c.Opportunity.Title)
	}
	data := reminderEmailData{
		VolunteerName: strings.TrimSpace(c.Signup.VolunteerName),
		EventTitle:    title,
		Opportunity:   oppTitle,
		Window:        FormatShiftWindow(c.Shift, c.Event),
		ConfirmURL:    fmt.Sprintf("%s/volunteer/shifts/%s/confirm", strings.TrimRight(baseURL, "/"), c.Assignment.ID),
		WindowHours:   ConfirmWindowHours,
	}

	var text, html bytes.Buffer
	if err := reminderEmailText.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("渲染纯文本邮件失败: %w", err)
	}
	if err := reminderEmailHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("渲染 HTML 邮件失败: %w", err)
	}
	return &renderedEmail{
		Subject: fmt.Sprintf("Please confirm your shift: %s", title),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
