package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	pkgerrors "sdrops/pkg/errors"
	"sdrops/pkg/metrics"
)

// ErrRuleDeleted reports that a queued task's rule was deleted before the
// task ran.
var ErrRuleDeleted = errors.New("rule no longer exists")

type LogRepository interface {
	// CreatePending inserts a pending row unless one with the same id exists,
	// and returns the status the row holds afterwards. It returns
	// ErrRuleDeleted when the rule is gone and no row exists.
	CreatePending(ctx context.Context, entry *Log) (LogStatus, error)
	// Resolve moves a pending row to a terminal status. It reports false when
	// the row was already terminal.
	Resolve(ctx context.Context, organizationID, id string, status LogStatus, result []byte, errorMessage *string) (bool, error)
	InsertTerminal(ctx context.Context, entry *Log) error
	GetLog(ctx context.Context, organizationID, id string) (*LogDetail, error)
	ListLogs(ctx context.Context, organizationID string, filter LogFilter) ([]Log, int, error)
	ExportLogs(ctx context.Context, organizationID string, filter LogFilter, maxRows int) ([]Log, error)
	BulkDelete(ctx context.Context, organizationID string, ids []string) (int64, error)
	Clear(ctx context.Context, organizationID string, filter ClearFilter) (int64, error)
	AnalyticsRows(ctx context.Context, organizationID string, filter AnalyticsFilter, maxRows int) ([]AnalyticsRow, error)
	CountStalePending(ctx context.Context, createdBefore time.Time) (int, error)
}

// AnalyticsRow is the compact projection the aggregator works on.
type AnalyticsRow struct {
	ID              string
	RuleID          *string
	ExportID        string
	ActionType      ActionType
	Status          LogStatus
	ErrorMessage    *string
	CreatedAt       time.Time
	RuleName        *string
	RuleEnabled     *bool
	RuleTriggerTags []string
}

type PostgresLogRepository struct {
	db *sql.DB
}

func NewLogRepository(db *sql.DB) *PostgresLogRepository {
	return &PostgresLogRepository{db: db}
}

const logColumns = `al.id, al.organization_id, al.rule_id, al.export_id, al.action_type, al.status,
		al.result, al.error_message, al.created_at, al.completed_at,
		ar.name, ar.action_type, ar.trigger_tags`

func scanLog(row rowScanner, extra ...interface{}) (Log, error) {
	var (
		entry  Log
		result []byte
	)
	dest := []interface{}{
		&entry.ID, &entry.OrganizationID, &entry.RuleID, &entry.ExportID, &entry.ActionType, &entry.Status,
		&result, &entry.ErrorMessage, &entry.CreatedAt, &entry.CompletedAt,
		&entry.RuleName, &entry.RuleActionType, pq.Array(&entry.RuleTriggerTags),
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Log{}, err
	}
	if len(result) > 0 {
		entry.Result = result
	}
	return entry, nil
}

func (r *PostgresLogRepository) CreatePending(ctx context.Context, entry *Log) (status LogStatus, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.create_pending", start, err) }(time.Now())

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Status = StatusPending

	// The rule row is key-share locked so a concurrent DeleteRules either waits
	// for this insert or is seen by it.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_logs (id, organization_id, rule_id, export_id, action_type, status, created_at)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::text, 'pending', $6::timestamptz
		WHERE $3::text IS NULL OR EXISTS (
			SELECT 1 FROM automation_rules
			WHERE id = $3::text AND organization_id = $2::text
			FOR KEY SHARE
		)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.OrganizationID, entry.RuleID, entry.ExportID, entry.ActionType, entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create pending log: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if inserted == 1 {
		return StatusPending, nil
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM automation_logs WHERE id = $1 AND organization_id = $2`,
		entry.ID, entry.OrganizationID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRuleDeleted
	}
	if err != nil {
		return "", fmt.Errorf("failed to read existing log %s: %w", entry.ID, err)
	}
	return status, nil
}

func (r *PostgresLogRepository) Resolve(ctx context.Context, organizationID, id string, status LogStatus, result []byte, errorMessage *string) (updated bool, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.resolve", start, err) }(time.Now())

	if !status.Terminal() {
		return false, fmt.Errorf("cannot resolve log to non-terminal status %q", status)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_logs
		SET status = $1, result = $2, error_message = $3, completed_at = NOW()
		WHERE id = $4 AND organization_id = $5 AND status = 'pending'`,
		status, jsonParam(result), errorMessage, id, organizationID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve log: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresLogRepository) InsertTerminal(ctx context.Context, entry *Log) (err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.insert_terminal", start, err) }(time.Now())

	if !entry.Status.Terminal() {
		return fmt.Errorf("cannot insert log with non-terminal status %q", entry.Status)
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.CompletedAt = &now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_logs (id, organization_id, rule_id, export_id, action_type, status,
			result, error_message, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.OrganizationID, entry.RuleID, entry.ExportID, entry.ActionType, entry.Status,
		jsonParam(entry.Result), entry.ErrorMessage, entry.CreatedAt, entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

func (r *PostgresLogRepository) GetLog(ctx context.Context, organizationID, id string) (*LogDetail, error) {
	query := `SELECT ` + logColumns + `, ar.action_config, ar.trigger_mode, ar.description` + logFromJoin + `
		WHERE al.organization_id = $1 AND al.id = $2`

	var (
		detail LogDetail
		config []byte
	)
	entry, err := scanLog(r.db.QueryRowContext(ctx, query, organizationID, id),
		&config, &detail.RuleTriggerMode, &detail.RuleDescription)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithMessage("Log not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get log: %w", err)
	}

	detail.Log = entry
	if len(config) > 0 {
		detail.RuleActionConfig = config
	}
	return &detail, nil
}

func (r *PostgresLogRepository) queryLogs(ctx context.Context, query string, args ...interface{}) ([]Log, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	logs := make([]Log, 0)
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logs: %w", err)
	}
	return logs, nil
}

// ListLogs expects a filter already passed through NormalizeLogFilter.
func (r *PostgresLogRepository) ListLogs(ctx context.Context, organizationID string, filter LogFilter) (logs []Log, total int, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.list", start, err) }(time.Now())

	qb, err := buildLogConditions(organizationID, filter)
	if err != nil {
		return nil, 0, pkgerrors.ErrValidation.WithMessage(err.Error())
	}

	countQuery := `SELECT COUNT(*)` + logFromJoin + "\n\t\t" + qb.clause()
	if err := r.db.QueryRowContext(ctx, countQuery, qb.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count logs: %w", err)
	}

	limit := qb.arg(filter.Limit)
	offset := qb.arg(filter.offset())
	query := `SELECT ` + logColumns + logFromJoin + "\n\t\t" + qb.clause() +
		"\n\t\tORDER BY " + filter.orderBy() +
		"\n\t\tLIMIT " + limit + " OFFSET " + offset

	logs, err = r.queryLogs(ctx, query, qb.args...)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (r *PostgresLogRepository) ExportLogs(ctx context.Context, organizationID string, filter LogFilter, maxRows int) (logs []Log, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.export", start, err) }(time.Now())

	qb, err := buildLogConditions(organizationID, filter)
	if err != nil {
		return nil, pkgerrors.ErrValidation.WithMessage(err.Error())
	}

	limit := qb.arg(maxRows)
	query := `SELECT ` + logColumns + logFromJoin + "\n\t\t" + qb.clause() +
		"\n\t\tORDER BY " + filter.orderBy() +
		"\n\t\tLIMIT " + limit

	return r.queryLogs(ctx, query, qb.args...)
}

func (r *PostgresLogRepository) BulkDelete(ctx context.Context, organizationID string, ids []string) (deleted int64, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.bulk_delete", start, err) }(time.Now())

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM automation_logs WHERE organization_id = $1 AND id = ANY($2)`,
		organizationID, pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete logs: %w", err)
	}
	return res.RowsAffected()
}

// Clear refuses to run without at least one filter beyond the organization.
func (r *PostgresLogRepository) Clear(ctx context.Context, organizationID string, filter ClearFilter) (deleted int64, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.clear", start, err) }(time.Now())

	qb := &queryBuilder{}
	qb.where("organization_id = %s", organizationID)
	if filter.RuleID != "" {
		qb.where("rule_id = %s", filter.RuleID)
	}
	if filter.Status != "" {
		qb.where("status = %s", filter.Status)
	}
	if filter.OlderThanDays > 0 {
		qb.where("created_at < NOW() - make_interval(days => %s)", filter.OlderThanDays)
	}
	if len(qb.conditions) == 1 {
		return 0, pkgerrors.ErrValidation.WithMessage("At least one filter is required to clear logs")
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM automation_logs `+qb.clause(), qb.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear logs: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresLogRepository) AnalyticsRows(ctx context.Context, organizationID string, filter AnalyticsFilter, maxRows int) (out []AnalyticsRow, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.analytics", start, err) }(time.Now())

	qb, err := buildLogConditions(organizationID, analyticsLogFilter(filter))
	if err != nil {
		return nil, pkgerrors.ErrValidation.WithMessage(err.Error())
	}

	limit := qb.arg(maxRows)
	query := `
		SELECT al.id, al.rule_id, al.export_id, al.action_type, al.status, al.error_message, al.created_at,
			ar.name, ar.enabled, ar.trigger_tags` + logFromJoin + "\n\t\t" + qb.clause() + `
		ORDER BY al.created_at DESC
		LIMIT ` + limit

	rows, err := r.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics rows: %w", err)
	}
	defer rows.Close()

	out = make([]AnalyticsRow, 0)
	for rows.Next() {
		var row AnalyticsRow
		if err := rows.Scan(
			&row.ID, &row.RuleID, &row.ExportID, &row.ActionType, &row.Status, &row.ErrorMessage, &row.CreatedAt,
			&row.RuleName, &row.RuleEnabled, pq.Array(&row.RuleTriggerTags),
		); err != nil {
			return nil, fmt.Errorf("failed to scan analytics row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analytics rows: %w", err)
	}
	return out, nil
}

func (r *PostgresLogRepository) CountStalePending(ctx context.Context, createdBefore time.Time) (count int, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("logs.count_stale", start, err) }(time.Now())

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM automation_logs WHERE status = 'pending' AND created_at < $1`,
		createdBefore,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale pending logs: %w", err)
	}
	return count, nil
}
