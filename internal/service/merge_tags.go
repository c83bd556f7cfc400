package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"volunteer-hub/internal/model"
)

// ── 合并标签 ──
// 活动定时邮件的正文为 Markdown，其中的 {{tag}} 在发送前按收件人替换

// mergeShift 单个班次在邮件中的展示信息
type mergeShift struct {
	AssignmentID string
	Title        string
	Window       string
	Location     string
	Notes        string
	ConfirmURL   string
	CancelURL    string
}

// mergeContext 一次渲染所需的全部数据
type mergeContext struct {
	Event               *model.Event
	VolunteerName       string
	Shifts              []mergeShift
	PortalURL           string
	RequireConfirmation bool
}

type mergeTag struct {
	token string
	block bool
	// resolve 返回纯文本和 HTML 两种替换值，HTML 已转义
	resolve func(c *mergeContext) (text, html string)
}

var mergeTags = []mergeTag{
	{token: "{{volunteer_name}}", resolve: func(c *mergeContext) (string, string) {
		return inlineValue(c.VolunteerName, "there")
	}},
	{token: "{{event_title}}", resolve: func(c *mergeContext) (string, string) {
		return inlineValue(c.Event.Title, "Volunteer event")
	}},
	{token: "{{event_day_time}}", resolve: func(c *mergeContext) (string, string) {
		return inlineValue(formatEventSchedule(c.Event), "Schedule coming soon")
	}},
	{token: "{{event_location}}", resolve: func(c *mergeContext) (string, string) {
		return inlineValue(eventLocation(c.Event), "Location coming soon")
	}},
	{token: "{{event_start}}", resolve: func(c *mergeContext) (string, string) {
		var label string
		if c.Event.EventStart != nil {
			label = c.Event.EventStart.In(resolveLocation(nil, c.Event)).Format("Monday, January 2, 2006 at 3:04 PM")
		}
		return inlineValue(label, "TBD")
	}},
	{token: "{{event_details_block}}", block: true, resolve: func(c *mergeContext) (string, string) {
		return eventDetailsText(c.Event), renderBlock(eventDetailsHTML, c)
	}},
	{token: "{{shift_details_block}}", block: true, resolve: func(c *mergeContext) (string, string) {
		return shiftDetailsText(c.Shifts), renderBlock(shiftDetailsHTML, c)
	}},
	{token: "{{shift_confirmation_block}}", block: true, resolve: func(c *mergeContext) (string, string) {
		return shiftConfirmationText(c), renderBlock(shiftConfirmationHTML, c)
	}},
	{token: "{{volunteer_portal_block}}", block: true, resolve: func(c *mergeContext) (string, string) {
		return "Manage your volunteer shifts: " + c.PortalURL, renderBlock(portalHTML, c)
	}},
}

const confirmationBlockToken = "{{shift_confirmation_block}}"

func inlineValue(value, fallback string) (string, string) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	return value, htmltemplate.HTMLEscapeString(value)
}

// applyMergeTags 替换全部标签；placeholders 非空时块级标签先替换为占位符，Markdown 渲染后再填回
func applyMergeTags(tpl string, c *mergeContext, html bool, placeholders map[string]string) string {
	out := tpl
	for _, tag := range mergeTags {
		if !strings.Contains(out, tag.token) {
			continue
		}
		text, htmlValue := tag.resolve(c)
		switch {
		case !html:
			out = strings.ReplaceAll(out, tag.token, text)
		case tag.block && placeholders != nil:
			key := fmt.Sprintf("[[[MERGEBLOCK%d]]]", len(placeholders))
			placeholders[key] = htmlValue
			out = strings.ReplaceAll(out, tag.token, key)
		default:
			out = strings.ReplaceAll(out, tag.token, htmlValue)
		}
	}
	return out
}

// RenderMergeSubject 渲染主题，块级标签以纯文本展开
func RenderMergeSubject(tpl string, c *mergeContext) string {
	subject := applyMergeTags(tpl, c, false, nil)
	return strings.Join(strings.Fields(subject), " ")
}

// RenderMergeBody 渲染正文，返回纯文本和 HTML
// 要求确认的模板若未放置确认块，则在末尾追加
func RenderMergeBody(tpl string, c *mergeContext) (text, html string, err error) {
	if c.RequireConfirmation && !strings.Contains(tpl, confirmationBlockToken) {
		tpl = strings.TrimRight(tpl, "\n") + "\n\n" + confirmationBlockToken + "\n"
	}

	placeholders := make(map[string]string)
	markdown := applyMergeTags(tpl, c, true, placeholders)
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", "", fmt.Errorf("渲染 Markdown 失败: %w", err)
	}
	html = buf.String()
	for key, value := range placeholders {
		html = strings.ReplaceAll(html, "<p>"+key+"</p>", value)
		html = strings.ReplaceAll(html, key, value)
	}

	text = applyMergeTags(tpl, c, false, nil)
	return strings.TrimSpace(text), strings.TrimSpace(html), nil
}

// ── 活动信息 ──

func eventLocation(e *model.Event) string {
	var parts []string
	for _, p := range []string{e.LocationName, e.LocationAddress} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// formatEventSchedule 同一天结束时只显示结束时刻
func formatEventSchedule(e *model.Event) string {
	if e.EventStart == nil && e.EventEnd == nil {
		return ""
	}
	loc := resolveLocation(nil, e)
	const full = "Jan 2, 2006, 3:04 PM"
	if e.EventStart == nil {
		return e.EventEnd.In(loc).Format(full)
	}
	start := e.EventStart.In(loc)
	if e.EventEnd == nil {
		return start.Format(full)
	}
	end := e.EventEnd.In(loc)
	if sameDay(start, end) {
		return start.Format(full) + " → " + end.Format("3:04 PM")
	}
	return start.Format(full) + " → " + end.Format(full)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func eventDetailsText(e *model.Event) string {
	var lines []string
	if t := strings.TrimSpace(e.Title); t != "" {
		lines = append(lines, "Event: "+t)
	}
	if s := formatEventSchedule(e); s != "" {
		lines = append(lines, "Schedule: "+s)
	}
	if l := eventLocation(e); l != "" {
		lines = append(lines, "Where: "+l)
	}
	if tz := strings.TrimSpace(e.Timezone); tz != "" {
		lines = append(lines, "Timezone: "+tz)
	}
	if len(lines) == 0 {
		return "Event details coming soon."
	}
	return strings.Join(lines, "\n")
}

func shiftDetailsText(shifts []mergeShift) string {
	if len(shifts) == 0 {
		return "Shift assignments will appear once confirmed."
	}
	sections := make([]string, 0, len(shifts))
	for i, sh := range shifts {
		lines := []string{fmt.Sprintf("Shift %d: %s", i+1, sh.Title)}
		if sh.Window != "" {
			lines = append(lines, "Time: "+sh.Window)
		}
		if sh.Location != "" {
			lines = append(lines, "Location: "+sh.Location)
		}
		if sh.Notes != "" {
			lines = append(lines, "Notes: "+sh.Notes)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

func shiftConfirmationText(c *mergeContext) string {
	if len(c.Shifts) == 0 {
		return "Confirmation buttons will appear once shifts are assigned."
	}
	sections := make([]string, 0, len(c.Shifts)+1)
	for i, sh := range c.Shifts {
		sections = append(sections, fmt.Sprintf("Shift %d: %s\nConfirm: %s\nCancel: %s", i+1, sh.Title, sh.ConfirmURL, sh.CancelURL))
	}
	if c.PortalURL != "" {
		sections = append(sections, "Manage or reschedule shifts: "+c.PortalURL)
	}
	return strings.Join(sections, "\n\n")
}

// ── HTML 块 ──

type mergeBlockData struct {
	Event     *model.Event
	Shifts    []mergeShift
	PortalURL string
	Schedule  string
	Location  string
}

func renderBlock(tpl *htmltemplate.Template, c *mergeContext) string {
	var buf bytes.Buffer
	data := mergeBlockData{
		Event:     c.Event,
		Shifts:    c.Shifts,
		PortalURL: c.PortalURL,
		Schedule:  formatEventSchedule(c.Event),
		Location:  eventLocation(c.Event),
	}
	if err := tpl.Execute(&buf, data); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

const blockStyle = `border-radius:16px;padding:16px;background:#f8fafc;border:1px solid #cbd5e1;`

var eventDetailsHTML = htmltemplate.Must(htmltemplate.New("event_details").Parse(`
<section style="` + blockStyle + `"><h4 style="margin:0 0 12px;">Event details</h4><ul style="margin:0;padding:0 0 0 18px;">
{{with .Event.Title}}<li><strong>Event:</strong> {{.}}</li>{{end}}
{{with .Schedule}}<li><strong>Schedule:</strong> {{.}}</li>{{end}}
{{with .Location}}<li><strong>Where:</strong> {{.}}</li>{{end}}
{{with .Event.Timezone}}<li><strong>Timezone:</strong> {{.}}</li>{{end}}
</ul></section>`))

var shiftDetailsHTML = htmltemplate.Must(htmltemplate.New("shift_details").Parse(`
{{if .Shifts}}<section style="` + blockStyle + `"><h4 style="margin:0 0 12px;">Your shift{{if gt (len .Shifts) 1}}s{{end}}</h4>
{{range .Shifts}}<div style="margin-bottom:12px;"><div style="font-weight:600;">{{.Title}}</div>
{{with .Window}}<div>{{.}}</div>{{end}}{{with .Location}}<div>{{.}}</div>{{end}}{{with .Notes}}<div style="font-size:13px;">{{.}}</div>{{end}}</div>
{{end}}</section>{{else}}<p>Shift assignments will appear here once confirmed.</p>{{end}}`))

var shiftConfirmationHTML = htmltemplate.Must(htmltemplate.New("shift_confirmation").Parse(`
{{if .Shifts}}<section style="` + blockStyle + `"><h4 style="margin:0 0 12px;">Confirm your shift</h4>
{{range .Shifts}}<div style="margin-bottom:12px;"><div style="font-weight:600;">{{.Title}}</div><div>{{.Window}}</div>
<div style="margin-top:12px;"><a href="{{.ConfirmURL}}" style="background:#34d399;color:#0f172a;padding:10px 14px;border-radius:999px;text-decoration:none;">Confirm shift</a>
<a href="{{.CancelURL}}" style="background:#f87171;color:#0f172a;padding:10px 14px;border-radius:999px;text-decoration:none;">Cancel shift</a></div></div>
{{end}}{{with .PortalURL}}<p style="font-size:13px;">Need a different time? <a href="{{.}}">View all volunteer shifts</a>.</p>{{end}}
</section>{{else}}<p>Confirmation buttons will appear once volunteers are assigned to shifts.</p>{{end}}`))

var portalHTML = htmltemplate.Must(htmltemplate.New("portal").Parse(`
<section style="` + blockStyle + `text-align:center;"><h4 style="margin:0 0 8px;">Manage your volunteer shifts</h4>
<p><a href="{{.PortalURL}}" style="display:inline-block;background:#38bdf8;color:#0f172a;padding:12px 18px;border-radius:999px;text-decoration:none;">Open volunteer portal</a></p>
<p style="font-size:12px;">Link not working? Copy this URL: {{.PortalURL}}</p></section>`))
