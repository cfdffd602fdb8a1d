package automation

import (
	"fmt"
	"strings"
	"time"

	"sdrops/internal/constants"
)

var logSortColumns = map[string]string{
	"created_at":  "al.created_at",
	"status":      "al.status",
	"action_type": "al.action_type",
	"rule_name":   "ar.name",
	"export_id":   "al.export_id",
}

const logFromJoin = `
		FROM automation_logs al
		LEFT JOIN automation_rules ar ON ar.id = al.rule_id AND ar.organization_id = al.organization_id`

// NormalizeLogFilter clamps paging: page below 1 becomes 1, a missing limit
// becomes the default and any limit is held within [1, MaxLogPageSize].
func NormalizeLogFilter(f LogFilter) LogFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit == 0:
		f.Limit = constants.DefaultLogPageSize
	case f.Limit < 1:
		f.Limit = 1
	case f.Limit > constants.MaxLogPageSize:
		f.Limit = constants.MaxLogPageSize
	}
	if _, ok := logSortColumns[f.SortBy]; !ok {
		f.SortBy = "created_at"
	}
	if strings.ToLower(f.SortDir) == "asc" {
		f.SortDir = "asc"
	} else {
		f.SortDir = "desc"
	}
	return f
}

func (f LogFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

func (f LogFilter) orderBy() string {
	dir := "DESC"
	if f.SortDir == "asc" {
		dir = "ASC"
	}
	return fmt.Sprintf("%s %s, al.id %s", logSortColumns[f.SortBy], dir, dir)
}

type queryBuilder struct {
	conditions []string
	args       []interface{}
}

func newQueryBuilder(organizationID string) *queryBuilder {
	qb := &queryBuilder{}
	qb.where("al.organization_id = %s", organizationID)
	return qb
}

// arg appends v and returns its placeholder.
func (qb *queryBuilder) arg(v interface{}) string {
	qb.args = append(qb.args, v)
	return fmt.Sprintf("$%d", len(qb.args))
}

// where adds a condition whose %s verbs are all bound to the same value v.
func (qb *queryBuilder) where(format string, v interface{}) {
	ph := qb.arg(v)
	n := strings.Count(format, "%s")
	phs := make([]interface{}, n)
	for i := range phs {
		phs[i] = ph
	}
	qb.conditions = append(qb.conditions, fmt.Sprintf(format, phs...))
}

func (qb *queryBuilder) clause() string {
	return "WHERE " + strings.Join(qb.conditions, " AND ")
}

// buildLogConditions translates the filter into SQL over the al/ar aliases.
func buildLogConditions(organizationID string, f LogFilter) (*queryBuilder, error) {
	qb := newQueryBuilder(organizationID)

	if f.RuleID != "" {
		qb.where("al.rule_id = %s", f.RuleID)
	}
	if f.ExportID != "" {
		qb.where("al.export_id = %s", f.ExportID)
	}
	if f.Status != "" {
		if !LogStatus(f.Status).Valid() {
			return nil, fmt.Errorf("invalid status %q, must be pending, success or error", f.Status)
		}
		qb.where("al.status = %s", f.Status)
	}
	if f.ActionType != "" {
		if !ActionType(f.ActionType).Valid() {
			return nil, fmt.Errorf("invalid action_type %q", f.ActionType)
		}
		qb.where("al.action_type = %s", f.ActionType)
	}
	if f.DateFrom != "" {
		from, err := parseDateBound(f.DateFrom, false)
		if err != nil {
			return nil, fmt.Errorf("invalid date_from: %w", err)
		}
		qb.where("al.created_at >= %s", from)
	}
	if f.DateTo != "" {
		to, err := parseDateBound(f.DateTo, true)
		if err != nil {
			return nil, fmt.Errorf("invalid date_to: %w", err)
		}
		qb.where("al.created_at <= %s", to)
	}
	if f.Tag != "" {
		qb.where("%s = ANY(ar.trigger_tags)", f.Tag)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		qb.where("(ar.name ILIKE %s OR al.export_id ILIKE %s OR al.error_message ILIKE %s)", "%"+escapeLike(s)+"%")
	}

	return qb, nil
}

const dateOnly = "2006-01-02"

// parseDateBound accepts YYYY-MM-DD or RFC3339. A bare date used as an upper
// bound means the last millisecond of that day in UTC.
func parseDateBound(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(dateOnly, value); err == nil {
		if endOfDay {
			return t.Add(24*time.Hour - time.Millisecond), nil
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", value)
	}
	return t, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func analyticsLogFilter(f AnalyticsFilter) LogFilter {
	return LogFilter{
		RuleID:   f.RuleID,
		Status:   f.Status,
		DateFrom: f.DateFrom,
		DateTo:   f.DateTo,
	}
}
