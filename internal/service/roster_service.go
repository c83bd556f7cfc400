package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"volunteer-hub/internal/model"
	"volunteer-hub/internal/repository"
	"volunteer-hub/pkg/session"
)

// ── 花名册导出业务错误 ──

var (
	ErrEventNotFound      = errors.New("活动不存在")
	ErrRosterForbidden    = errors.New("仅活动主办方可导出花名册")
	ErrRosterGenerateFail = errors.New("生成花名册文件失败")
)

// excelize 工作表名最长 31 个字符，且不能包含 : \ / ? * [ ]
const maxSheetNameLen = 31

var invalidSheetChars = regexp.MustCompile(`[:\\/?*\[\]]`)

var rosterHeaders = []string{"Shift start", "Shift end", "Volunteer", "Email", "Phone", "Status", "Confirmed at", "Cancelled at"}

// RosterService 活动花名册导出
type RosterService interface {
	ExportRoster(ctx context.Context, user *session.User, eventID string) (*bytes.Buffer, string, error)
}

type rosterService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewRosterService 创建 RosterService 实例
func NewRosterService(repo *repository.Repository, logger *zap.Logger) RosterService {
	return &rosterService{repo: repo, logger: logger}
}

// rosterRow 花名册一行
type rosterRow struct {
	shift      *model.Shift
	assignment *model.Assignment
	signup     *model.Signup
}

// ════════════════════════════════════════════════════════════
// ExportRoster 校验主办方身份 → 加载岗位/班次/分配 → 每个岗位一个工作表
// ════════════════════════════════════════════════════════════

func (s *rosterService) ExportRoster(ctx context.Context, user *session.User, eventID string) (*bytes.Buffer, string, error) {
	if user.Anonymous() || user.ID == "" {
		return nil, "", ErrLoginRequired
	}

	// 1. 活动与权限
	event, err := s.repo.Event.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrEventNotFound
		}
		return nil, "", err
	}
	isHost, err := s.isEventHost(ctx, event, user.ID)
	if err != nil {
		s.logger.Error("校验主办方身份失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, "", err
	}
	if !isHost {
		return nil, "", ErrRosterForbidden
	}

	// 2. 岗位 → 班次
	opps, err := s.repo.Opportunity.ListByEventIDs(ctx, []string{event.ID})
	if err != nil {
		return nil, "", err
	}
	oppIDs := make([]string, 0, len(opps))
	for _, o := range opps {
		oppIDs = append(oppIDs, o.ID)
	}
	shifts, err := s.repo.Shift.ListByOpportunityIDs(ctx, oppIDs)
	if err != nil {
		return nil, "", err
	}
	shiftIDs := make([]string, 0, len(shifts))
	shiftsByOpp := map[string][]*model.Shift{}
	for i := range shifts {
		shiftIDs = append(shiftIDs, shifts[i].ID)
		if shifts[i].OpportunityID != nil {
			shiftsByOpp[*shifts[i].OpportunityID] = append(shiftsByOpp[*shifts[i].OpportunityID], &shifts[i])
		}
	}

	// 3. 分配 → 报名
	assignments, err := s.repo.Assignment.ListByShiftIDs(ctx, shiftIDs)
	if err != nil {
		return nil, "", err
	}
	var signupIDs []string
	byShift := map[string][]*model.Assignment{}
	for i := range assignments {
		signupIDs = append(signupIDs, assignments[i].SignupID)
		byShift[assignments[i].ShiftID] = append(byShift[assignments[i].ShiftID], &assignments[i])
	}
	signups, err := s.repo.Signup.ListByIDs(ctx, uniqueStrings(signupIDs))
	if err != nil {
		return nil, "", err
	}
	signupIndex := make(map[string]*model.Signup, len(signups))
	for i := range signups {
		signupIndex[signups[i].ID] = &signups[i]
	}

	// 4. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	used := map[string]int{}
	first := ""
	for _, opp := range opps {
		sheet := uniqueSheetName(opp.Title, used)
		if _, err := f.NewSheet(sheet); err != nil {
			s.logger.Error("创建工作表失败", zap.String("sheet", sheet), zap.Error(err))
			return nil, "", ErrRosterGenerateFail
		}
		if first == "" {
			first = sheet
		}
		writeRosterSheet(f, sheet, headerStyle, collectRosterRows(shiftsByOpp[opp.ID], byShift, signupIndex), event)
	}
	if first == "" {
		first = "Roster"
		if _, err := f.NewSheet(first); err != nil {
			return nil, "", ErrRosterGenerateFail
		}
		writeRosterSheet(f, first, headerStyle, nil, event)
	}
	if idx, err := f.GetSheetIndex(first); err == nil {
		f.SetActiveSheet(idx)
	}
	// 删除默认 Sheet1
	if used["sheet1"] == 0 && first != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrRosterGenerateFail
	}
	return buf, rosterFilename(event), nil
}

// isEventHost 主办人、协办人或主办群组所有者
func (s *rosterService) isEventHost(ctx context.Context, event *model.Event, userID string) (bool, error) {
	if event.HostUserID != nil && *event.HostUserID == userID {
		return true, nil
	}
	hostIDs, err := s.repo.Event.ListHostUserIDs(ctx, event.ID)
	if err != nil {
		return false, err
	}
	for _, id := range hostIDs {
		if id == userID {
			return true, nil
		}
	}
	if event.HostGroupID == nil || *event.HostGroupID == "" {
		return false, nil
	}
	owners, err := s.repo.GroupMember.ListUserIDsByRole(ctx, *event.HostGroupID, model.GroupRoleOwner)
	if err != nil {
		return false, err
	}
	for _, id := range owners {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// collectRosterRows 班次按开始时间升序，班次内按志愿者姓名排序；无分配的班次保留一行空行
func collectRosterRows(shifts []*model.Shift, byShift map[string][]*model.Assignment, signups map[string]*model.Signup) []rosterRow {
	sorted := append([]*model.Shift(nil), shifts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return timeLess(sorted[i].StartsAt, sorted[j].StartsAt)
	})

	var rows []rosterRow
	for _, shift := range sorted {
		list := byShift[shift.ID]
		if len(list) == 0 {
			rows = append(rows, rosterRow{shift: shift})
			continue
		}
		start := len(rows)
		for _, a := range list {
			rows = append(rows, rosterRow{shift: shift, assignment: a, signup: signups[a.SignupID]})
		}
		part := rows[start:]
		sort.SliceStable(part, func(i, j int) bool {
			return strings.ToLower(rosterName(part[i].signup)) < strings.ToLower(rosterName(part[j].signup))
		})
	}
	return rows
}

func writeRosterSheet(f *excelize.File, sheet string, headerStyle int, rows []rosterRow, event *model.Event) {
	f.SetColWidth(sheet, "A", "B", 22)
	f.SetColWidth(sheet, "C", "C", 24)
	f.SetColWidth(sheet, "D", "D", 30)
	f.SetColWidth(sheet, "E", "E", 16)
	f.SetColWidth(sheet, "F", "F", 14)
	f.SetColWidth(sheet, "G", "H", 22)

	for i, h := range rosterHeaders {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, c, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(rosterHeaders), 1)
	f.SetCellStyle(sheet, "A1", last, headerStyle)
	f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	for i, r := range rows {
		row := i + 2
		loc := resolveLocation(r.shift, event)
		values := []string{
			formatRosterTime(r.shift.StartsAt, loc),
			formatRosterTime(r.shift.EndsAt, loc),
			rosterName(r.signup),
			"", "", "", "", "",
		}
		if r.signup != nil {
			values[3] = strings.TrimSpace(r.signup.VolunteerEmail)
			values[4] = strings.TrimSpace(r.signup.VolunteerPhone)
		}
		if r.assignment != nil {
			values[5] = statusLabel(r.assignment)
			values[6] = formatRosterTime(r.assignment.ConfirmedAt, loc)
			values[7] = formatRosterTime(r.assignment.CancelledAt, loc)
		}
		for col, v := range values {
			c, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, c, v)
		}
	}
}

func rosterName(signup *model.Signup) string {
	if signup == nil {
		return ""
	}
	return strings.TrimSpace(signup.VolunteerName)
}

func formatRosterTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// uniqueSheetName 清洗岗位名作为工作表名，重名时追加序号
func uniqueSheetName(title string, used map[string]int) string {
	name := strings.TrimSpace(invalidSheetChars.ReplaceAllString(title, " "))
	name = strings.Trim(name, "'")
	if name == "" {
		name = "Shifts"
	}
	name = truncateRunes(name, maxSheetNameLen)

	key := strings.ToLower(name)
	n := used[key]
	used[key] = n + 1
	if n == 0 {
		return name
	}
	suffix := fmt.Sprintf(" (%d)", n+1)
	candidate := truncateRunes(name, maxSheetNameLen-len([]rune(suffix))) + suffix
	used[strings.ToLower(candidate)]++
	return candidate
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func rosterFilename(event *model.Event) string {
	base := strings.TrimSpace(event.Slug)
	if base == "" {
		base = event.ID
	}
	return fmt.Sprintf("roster_%s.xlsx", base)
}
