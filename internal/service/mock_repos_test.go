package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"volunteer-hub/internal/model"
	"volunteer-hub/internal/repository"
	pkgerrors "volunteer-hub/pkg/errors"
	"volunteer-hub/pkg/mailer"
)

// ── 内存数据集 ──
// 所有 mock repo 共享同一个 store，读写均复制，模拟数据库行

type mockStore struct {
	mu sync.Mutex

	events       map[string]*model.Event
	eventHosts   map[string][]string
	opps         map[string]*model.Opportunity
	oppOrder     []string
	shifts       map[string]*model.Shift
	shiftOrder   []string
	signups      map[string]*model.Signup
	signupOrder  []string
	assignments  map[string]*model.Assignment
	assignOrder  []string
	profiles     map[string]*model.Profile
	groupMembers []model.GroupMember
	emailLogs    []model.EmailLog
	eventEmails  []*model.EventEmail

	seq          int
	lockedShifts []string
	txCommitted  int
	txRolledBack int
	updateErr    error // 非空时 Assignment.Update 返回该错误
	listShiftErr error // 非空时 Assignment.ListByShift 返回该错误
	beforeUpdate func(a *model.Assignment)
}

func newMockStore() *mockStore {
	return &mockStore{
		events:      make(map[string]*model.Event),
		eventHosts:  make(map[string][]string),
		opps:        make(map[string]*model.Opportunity),
		shifts:      make(map[string]*model.Shift),
		signups:     make(map[string]*model.Signup),
		assignments: make(map[string]*model.Assignment),
		profiles:    make(map[string]*model.Profile),
	}
}

func (s *mockStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

// ── 数据装配 ──

func (s *mockStore) addEvent(e *model.Event) *model.Event {
	s.events[e.ID] = e
	return e
}

func (s *mockStore) addOpportunity(o *model.Opportunity) *model.Opportunity {
	s.opps[o.ID] = o
	s.oppOrder = append(s.oppOrder, o.ID)
	return o
}

func (s *mockStore) addShift(sh *model.Shift) *model.Shift {
	s.shifts[sh.ID] = sh
	s.shiftOrder = append(s.shiftOrder, sh.ID)
	return sh
}

func (s *mockStore) addSignup(su *model.Signup) *model.Signup {
	s.signups[su.ID] = su
	s.signupOrder = append(s.signupOrder, su.ID)
	return su
}

func (s *mockStore) addAssignment(a *model.Assignment) *model.Assignment {
	if a.Version == 0 {
		a.Version = 1
	}
	s.assignments[a.ID] = a
	s.assignOrder = append(s.assignOrder, a.ID)
	return a
}

func (s *mockStore) addEventEmail(e *model.EventEmail) *model.EventEmail {
	s.eventEmails = append(s.eventEmails, e)
	return e
}

func (s *mockStore) addProfile(p *model.Profile) *model.Profile {
	s.profiles[p.UserID] = p
	return p
}

// assignment 读取当前持久化状态
func (s *mockStore) assignment(id string) *model.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (s *mockStore) snapshotAssignments() (map[string]*model.Assignment, []string) {
	cp := make(map[string]*model.Assignment, len(s.assignments))
	for k, v := range s.assignments {
		a := *v
		cp[k] = &a
	}
	return cp, append([]string(nil), s.assignOrder...)
}

// ── Mock EventRepository ──

type mockEventRepo struct{ s *mockStore }

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	if e, ok := m.s.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEventRepo) ListByIDs(_ context.Context, ids []string) ([]model.Event, error) {
	var result []model.Event
	for _, id := range ids {
		if e, ok := m.s.events[id]; ok {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *mockEventRepo) ListHostUserIDs(_ context.Context, eventID string) ([]string, error) {
	return append([]string(nil), m.s.eventHosts[eventID]...), nil
}

// ── Mock OpportunityRepository ──

type mockOpportunityRepo struct{ s *mockStore }

func (m *mockOpportunityRepo) GetByID(_ context.Context, id string) (*model.Opportunity, error) {
	if o, ok := m.s.opps[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOpportunityRepo) ListByEventIDs(_ context.Context, eventIDs []string) ([]model.Opportunity, error) {
	want := toSet(eventIDs)
	var result []model.Opportunity
	for _, id := range m.s.oppOrder {
		if o := m.s.opps[id]; want[o.EventID] {
			result = append(result, *o)
		}
	}
	return result, nil
}

// ── Mock ShiftRepository ──

type mockShiftRepo struct{ s *mockStore }

func (m *mockShiftRepo) GetByID(_ context.Context, id string) (*model.Shift, error) {
	if sh, ok := m.s.shifts[id]; ok {
		cp := *sh
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockShiftRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Shift, error) {
	m.s.lockedShifts = append(m.s.lockedShifts, id)
	return m.GetByID(ctx, id)
}

func (m *mockShiftRepo) ListByOpportunityIDs(_ context.Context, opportunityIDs []string) ([]model.Shift, error) {
	want := toSet(opportunityIDs)
	var result []model.Shift
	for _, id := range m.s.shiftOrder {
		sh := m.s.shifts[id]
		if sh.OpportunityID != nil && want[*sh.OpportunityID] {
			result = append(result, *sh)
		}
	}
	return result, nil
}

// ── Mock SignupRepository ──

type mockSignupRepo struct{ s *mockStore }

func (m *mockSignupRepo) GetByID(_ context.Context, id string) (*model.Signup, error) {
	if su, ok := m.s.signups[id]; ok {
		cp := *su
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSignupRepo) ListByIDs(_ context.Context, ids []string) ([]model.Signup, error) {
	var result []model.Signup
	for _, id := range ids {
		if su, ok := m.s.signups[id]; ok {
			result = append(result, *su)
		}
	}
	return result, nil
}

func (m *mockSignupRepo) ListByVolunteer(_ context.Context, userID, email string, limit int) ([]model.Signup, error) {
	var result []model.Signup
	for i := len(m.s.signupOrder) - 1; i >= 0; i-- {
		su := m.s.signups[m.s.signupOrder[i]]
		if su.OwnedBy(userID, strings.ToLower(email)) {
			result = append(result, *su)
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *mockSignupRepo) ListByEvent(_ context.Context, eventID string) ([]model.Signup, error) {
	var result []model.Signup
	for _, id := range m.s.signupOrder {
		su := m.s.signups[id]
		if su.EventID != nil && *su.EventID == eventID {
			result = append(result, *su)
		}
	}
	return result, nil
}

// ── Mock AssignmentRepository ──

type mockAssignmentRepo struct{ s *mockStore }

func (m *mockAssignmentRepo) Create(_ context.Context, a *model.Assignment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if a.ID == "" {
		a.ID = m.s.nextID("asg-new")
	}
	a.Version = 1
	cp := *a
	m.s.assignments[a.ID] = &cp
	m.s.assignOrder = append(m.s.assignOrder, a.ID)
	return nil
}

func (m *mockAssignmentRepo) GetByID(_ context.Context, id string) (*model.Assignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if a, ok := m.s.assignments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAssignmentRepo) Update(_ context.Context, a *model.Assignment) error {
	if m.s.beforeUpdate != nil {
		m.s.beforeUpdate(a)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.updateErr != nil {
		return m.s.updateErr
	}
	stored, ok := m.s.assignments[a.ID]
	if !ok || stored.Version != a.Version {
		return pkgerrors.ErrOptimisticLock
	}
	a.Version++
	cp := *a
	m.s.assignments[a.ID] = &cp
	return nil
}

func (m *mockAssignmentRepo) list(match func(a *model.Assignment) bool) []model.Assignment {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Assignment
	for _, id := range m.s.assignOrder {
		if a := m.s.assignments[id]; match(a) {
			result = append(result, *a)
		}
	}
	return result
}

func (m *mockAssignmentRepo) ListByShift(_ context.Context, shiftID string) ([]model.Assignment, error) {
	if m.s.listShiftErr != nil {
		return nil, m.s.listShiftErr
	}
	return m.list(func(a *model.Assignment) bool { return a.ShiftID == shiftID }), nil
}

func (m *mockAssignmentRepo) ListByShiftIDs(_ context.Context, shiftIDs []string) ([]model.Assignment, error) {
	want := toSet(shiftIDs)
	return m.list(func(a *model.Assignment) bool { return want[a.ShiftID] }), nil
}

func (m *mockAssignmentRepo) ListBySignupIDs(_ context.Context, signupIDs []string) ([]model.Assignment, error) {
	want := toSet(signupIDs)
	return m.list(func(a *model.Assignment) bool { return want[a.SignupID] }), nil
}

func (m *mockAssignmentRepo) ListBySignupAndShift(_ context.Context, signupID, shiftID string) ([]model.Assignment, error) {
	return m.list(func(a *model.Assignment) bool { return a.SignupID == signupID && a.ShiftID == shiftID }), nil
}

func (m *mockAssignmentRepo) ListPendingConfirmation(_ context.Context, from, to time.Time) ([]model.Assignment, error) {
	result := m.list(func(a *model.Assignment) bool {
		if a.StatusValue() != model.StatusApproved || a.ConfirmedAt != nil || a.CancelledAt != nil {
			return false
		}
		sh := m.s.shifts[a.ShiftID]
		return sh != nil && sh.StartsAt != nil && sh.StartsAt.After(from) && !sh.StartsAt.After(to)
	})
	sort.SliceStable(result, func(i, j int) bool {
		return m.s.shifts[result[i].ShiftID].StartsAt.Before(*m.s.shifts[result[j].ShiftID].StartsAt)
	})
	return result, nil
}

// ── Mock ProfileRepository / GroupMemberRepository ──

type mockProfileRepo struct{ s *mockStore }

func (m *mockProfileRepo) GetByUserID(_ context.Context, userID string) (*model.Profile, error) {
	if p, ok := m.s.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockProfileRepo) ListByUserIDs(_ context.Context, userIDs []string) ([]model.Profile, error) {
	var result []model.Profile
	for _, id := range userIDs {
		if p, ok := m.s.profiles[id]; ok {
			result = append(result, *p)
		}
	}
	return result, nil
}

type mockGroupMemberRepo struct{ s *mockStore }

func (m *mockGroupMemberRepo) ListUserIDsByRole(_ context.Context, groupID, role string) ([]string, error) {
	var ids []string
	for _, gm := range m.s.groupMembers {
		if gm.GroupID == groupID && gm.Role == role {
			ids = append(ids, gm.UserID)
		}
	}
	return ids, nil
}

// ── Mock EmailLogRepository ──

type mockEmailLogRepo struct{ s *mockStore }

func (m *mockEmailLogRepo) Create(_ context.Context, log *model.EmailLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	log.ID = m.s.nextID("log")
	m.s.emailLogs = append(m.s.emailLogs, *log)
	return nil
}

func (m *mockEmailLogRepo) HasSent(_ context.Context, assignmentID, emailType string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, l := range m.s.emailLogs {
		if l.AssignmentID != nil && *l.AssignmentID == assignmentID && l.EmailType == emailType && l.Status == model.EmailStatusSent {
			return true, nil
		}
	}
	return false, nil
}

// ── Mock EventEmailRepository ──

type mockEventEmailRepo struct{ s *mockStore }

func (m *mockEventEmailRepo) ListScheduled(_ context.Context) ([]model.EventEmail, error) {
	var result []model.EventEmail
	for _, tpl := range m.s.eventEmails {
		ev, ok := m.s.events[tpl.EventID]
		if !ok || ev.Status != "published" || ev.EventStart == nil {
			continue
		}
		cp := *tpl
		evCopy := *ev
		cp.Event = &evCopy
		result = append(result, cp)
	}
	return result, nil
}

func (m *mockEventEmailRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	for _, tpl := range m.s.eventEmails {
		if tpl.ID == id {
			tpl.LastSentAt = &at
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ── Mock Transactor ──
// fn 返回错误时恢复分配表快照，模拟回滚

type mockTransactor struct {
	s    *mockStore
	repo *repository.Repository
}

func (m *mockTransactor) WithinTx(_ context.Context, fn func(tx *repository.Repository) error) error {
	m.s.mu.Lock()
	snapshot, order := m.s.snapshotAssignments()
	m.s.mu.Unlock()

	if err := fn(m.repo); err != nil {
		m.s.mu.Lock()
		m.s.assignments, m.s.assignOrder = snapshot, order
		m.s.txRolledBack++
		m.s.mu.Unlock()
		return err
	}
	m.s.txCommitted++
	return nil
}

// newMockRepository 基于 store 组装 Repository 聚合
func newMockRepository(s *mockStore) *repository.Repository {
	repo := &repository.Repository{
		Event:       &mockEventRepo{s: s},
		Opportunity: &mockOpportunityRepo{s: s},
		Shift:       &mockShiftRepo{s: s},
		Signup:      &mockSignupRepo{s: s},
		Assignment:  &mockAssignmentRepo{s: s},
		Profile:     &mockProfileRepo{s: s},
		GroupMember: &mockGroupMemberRepo{s: s},
		EmailLog:    &mockEmailLogRepo{s: s},
		EventEmail:  &mockEventEmailRepo{s: s},
	}
	repo.Tx = &mockTransactor{s: s, repo: repo}
	return repo
}

// ── Mock Mailer ──

type mockMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *mockMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// ── 记录型 HostNotifier ──

type notifyCall struct {
	AssignmentID string
	Type         model.NotificationType
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) Notify(_ context.Context, assignmentID string, t model.NotificationType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{AssignmentID: assignmentID, Type: t})
}

// ── 工具函数 ──

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }
