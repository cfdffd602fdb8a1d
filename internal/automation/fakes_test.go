package automation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "sdrops/pkg/errors"
)

type memRuleRepo struct {
	mu    sync.Mutex
	rules map[string]Rule
	err   error
}

func newMemRuleRepo(rules ...Rule) *memRuleRepo {
	repo := &memRuleRepo{rules: make(map[string]Rule)}
	for _, r := range rules {
		repo.rules[r.ID] = r
	}
	return repo
}

func (m *memRuleRepo) sorted(organizationID string, onlyEnabled bool) []Rule {
	out := make([]Rule, 0)
	for _, r := range m.rules {
		if r.OrganizationID != organizationID || (onlyEnabled && !r.Enabled) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memRuleRepo) ListRules(_ context.Context, organizationID string) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.sorted(organizationID, false), nil
}

func (m *memRuleRepo) ListEnabledRules(_ context.Context, organizationID string) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.sorted(organizationID, true), nil
}

func (m *memRuleRepo) GetRule(_ context.Context, organizationID, id string) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.OrganizationID != organizationID {
		return nil, pkgerrors.ErrNotFound.WithMessage("Rule not found")
	}
	return &r, nil
}

func (m *memRuleRepo) CreateRule(_ context.Context, r *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.rules[r.ID] = *r
	return nil
}

func (m *memRuleRepo) UpdateRule(_ context.Context, r *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rules[r.ID]
	if !ok || existing.OrganizationID != r.OrganizationID {
		return pkgerrors.ErrNotFound.WithMessage("Rule not found")
	}
	r.UpdatedAt = time.Now().UTC()
	m.rules[r.ID] = *r
	return nil
}

func (m *memRuleRepo) BulkToggle(_ context.Context, organizationID string, ruleIDs []string, enabled bool) ([]ToggleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]ToggleResult, 0)
	for _, id := range ruleIDs {
		r, ok := m.rules[id]
		if !ok || r.OrganizationID != organizationID {
			continue
		}
		r.Enabled = enabled
		m.rules[id] = r
		results = append(results, ToggleResult{ID: id, Enabled: enabled})
	}
	return results, nil
}

func (m *memRuleRepo) DeleteRules(_ context.Context, organizationID string, ruleIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ruleIDs {
		if r, ok := m.rules[id]; ok && r.OrganizationID == organizationID {
			delete(m.rules, id)
			n++
		}
	}
	return n, nil
}

type memLogRepo struct {
	mu         sync.Mutex
	logs       map[string]*Log
	createErr  error
	resolveErr error
	insertErr  error
	analytics  []AnalyticsRow
	listFilter LogFilter
	// deletedRules makes CreatePending behave as if these rules were gone.
	deletedRules map[string]bool
	// honorCtx makes writes fail on a done context, as database/sql does.
	honorCtx bool
}

func newMemLogRepo() *memLogRepo {
	return &memLogRepo{logs: make(map[string]*Log)}
}

func (m *memLogRepo) get(id string) (Log, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return Log{}, false
	}
	return *l, true
}

func (m *memLogRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func (m *memLogRepo) CreatePending(ctx context.Context, entry *Log) (LogStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	if m.honorCtx && ctx.Err() != nil {
		return "", ctx.Err()
	}
	if existing, ok := m.logs[entry.ID]; ok {
		return existing.Status, nil
	}
	if entry.RuleID != nil && m.deletedRules[*entry.RuleID] {
		return "", ErrRuleDeleted
	}
	stored := *entry
	stored.Status = StatusPending
	stored.CreatedAt = time.Now().UTC()
	m.logs[entry.ID] = &stored
	return StatusPending, nil
}

func (m *memLogRepo) Resolve(ctx context.Context, organizationID, id string, status LogStatus, result []byte, errorMessage *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolveErr != nil {
		return false, m.resolveErr
	}
	if m.honorCtx && ctx.Err() != nil {
		return false, ctx.Err()
	}
	l, ok := m.logs[id]
	if !ok || l.OrganizationID != organizationID || l.Status != StatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	l.Status = status
	l.Result = result
	l.ErrorMessage = errorMessage
	l.CompletedAt = &now
	return true, nil
}

func (m *memLogRepo) InsertTerminal(_ context.Context, entry *Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.logs[entry.ID]; ok {
		return nil
	}
	stored := *entry
	m.logs[entry.ID] = &stored
	return nil
}

func (m *memLogRepo) GetLog(_ context.Context, organizationID, id string) (*LogDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok || l.OrganizationID != organizationID {
		return nil, pkgerrors.ErrNotFound.WithMessage("Log not found")
	}
	return &LogDetail{Log: *l}, nil
}

func (m *memLogRepo) byOrg(organizationID string) []Log {
	out := make([]Log, 0)
	for _, l := range m.logs {
		if l.OrganizationID == organizationID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memLogRepo) ListLogs(_ context.Context, organizationID string, filter LogFilter) ([]Log, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFilter = filter
	all := m.byOrg(organizationID)
	return all, len(all), nil
}

func (m *memLogRepo) ExportLogs(_ context.Context, organizationID string, filter LogFilter, maxRows int) ([]Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFilter = filter
	all := m.byOrg(organizationID)
	if len(all) > maxRows {
		all = all[:maxRows]
	}
	return all, nil
}

func (m *memLogRepo) BulkDelete(_ context.Context, organizationID string, logIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range logIDs {
		if l, ok := m.logs[id]; ok && l.OrganizationID == organizationID {
			delete(m.logs, id)
			n++
		}
	}
	return n, nil
}

func (m *memLogRepo) Clear(_ context.Context, organizationID string, filter ClearFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if filter.RuleID == "" && filter.Status == "" && filter.OlderThanDays <= 0 {
		return 0, pkgerrors.ErrValidation.WithMessage("At least one filter is required to clear logs")
	}
	var n int64
	for id, l := range m.logs {
		if l.OrganizationID != organizationID {
			continue
		}
		if filter.Status != "" && string(l.Status) != filter.Status {
			continue
		}
		if filter.RuleID != "" && (l.RuleID == nil || *l.RuleID != filter.RuleID) {
			continue
		}
		delete(m.logs, id)
		n++
	}
	return n, nil
}

func (m *memLogRepo) AnalyticsRows(_ context.Context, _ string, _ AnalyticsFilter, maxRows int) ([]AnalyticsRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.analytics
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return rows, nil
}

func (m *memLogRepo) CountStalePending(_ context.Context, createdBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.logs {
		if l.Status == StatusPending && l.CreatedAt.Before(createdBefore) {
			n++
		}
	}
	return n, nil
}
