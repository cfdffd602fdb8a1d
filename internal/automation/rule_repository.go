package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "sdrops/pkg/errors"
	"sdrops/pkg/metrics"
)

type RuleRepository interface {
	ListRules(ctx context.Context, organizationID string) ([]Rule, error)
	ListEnabledRules(ctx context.Context, organizationID string) ([]Rule, error)
	GetRule(ctx context.Context, organizationID, id string) (*Rule, error)
	CreateRule(ctx context.Context, rule *Rule) error
	UpdateRule(ctx context.Context, rule *Rule) error
	BulkToggle(ctx context.Context, organizationID string, ids []string, enabled bool) ([]ToggleResult, error)
	// DeleteRules removes the rules and their execution logs in one transaction.
	DeleteRules(ctx context.Context, organizationID string, ids []string) (int64, error)
}

type PostgresRuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *PostgresRuleRepository {
	return &PostgresRuleRepository{db: db}
}

const ruleColumns = `id, organization_id, name, description, trigger_tags, trigger_mode, condition,
		action_type, action_config, enabled, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (Rule, error) {
	var (
		rule   Rule
		config []byte
	)
	err := row.Scan(
		&rule.ID, &rule.OrganizationID, &rule.Name, &rule.Description,
		pq.Array(&rule.TriggerTags), &rule.TriggerMode, &rule.Condition,
		&rule.ActionType, &config, &rule.Enabled, &rule.CreatedBy,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return Rule{}, err
	}
	rule.ActionConfig = config
	return rule, nil
}

func (r *PostgresRuleRepository) queryRules(ctx context.Context, op, query string, args ...interface{}) (rules []Rule, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery(op, start, err) }(time.Now())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules = make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return rules, nil
}

func (r *PostgresRuleRepository) ListRules(ctx context.Context, organizationID string) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE organization_id = $1
		ORDER BY created_at DESC, id`
	return r.queryRules(ctx, "rules.list", query, organizationID)
}

func (r *PostgresRuleRepository) ListEnabledRules(ctx context.Context, organizationID string) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE organization_id = $1 AND enabled = TRUE`
	return r.queryRules(ctx, "rules.list_enabled", query, organizationID)
}

func (r *PostgresRuleRepository) GetRule(ctx context.Context, organizationID, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE organization_id = $1 AND id = $2`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, organizationID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithMessage("Rule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

func (r *PostgresRuleRepository) CreateRule(ctx context.Context, rule *Rule) (err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("rules.create", start, err) }(time.Now())

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO automation_rules (id, organization_id, name, description, trigger_tags, trigger_mode,
			condition, action_type, action_config, enabled, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.OrganizationID, rule.Name, rule.Description,
		pq.Array(rule.TriggerTags), rule.TriggerMode, rule.Condition,
		rule.ActionType, jsonParam(rule.ActionConfig), rule.Enabled, rule.CreatedBy,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).WithMessage(fmt.Sprintf("rule with id '%s' already exists", rule.ID))
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *PostgresRuleRepository) UpdateRule(ctx context.Context, rule *Rule) (err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("rules.update", start, err) }(time.Now())

	query := `
		UPDATE automation_rules
		SET name = $1, description = $2, trigger_tags = $3, trigger_mode = $4, condition = $5,
			action_type = $6, action_config = $7, enabled = $8, updated_at = NOW()
		WHERE organization_id = $9 AND id = $10
		RETURNING updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		rule.Name, rule.Description, pq.Array(rule.TriggerTags), rule.TriggerMode, rule.Condition,
		rule.ActionType, jsonParam(rule.ActionConfig), rule.Enabled,
		rule.OrganizationID, rule.ID,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrNotFound.WithMessage("Rule not found")
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

func (r *PostgresRuleRepository) BulkToggle(ctx context.Context, organizationID string, ids []string, enabled bool) (results []ToggleResult, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("rules.bulk_toggle", start, err) }(time.Now())

	query := `
		UPDATE automation_rules
		SET enabled = $1, updated_at = NOW()
		WHERE organization_id = $2 AND id = ANY($3)
		RETURNING id, enabled
	`

	rows, err := r.db.QueryContext(ctx, query, enabled, organizationID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to toggle rules: %w", err)
	}
	defer rows.Close()

	results = make([]ToggleResult, 0, len(ids))
	for rows.Next() {
		var res ToggleResult
		if err := rows.Scan(&res.ID, &res.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan toggled rule: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate toggled rules: %w", err)
	}

	return results, nil
}

func (r *PostgresRuleRepository) DeleteRules(ctx context.Context, organizationID string, ids []string) (deleted int64, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("rules.delete", start, err) }(time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM automation_rules WHERE organization_id = $1 AND id = ANY($2)`,
		organizationID, pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rules: %w", err)
	}

	deleted, err = res.RowsAffected()
	if err != nil {
		return 0, err
	}

	// Rules go first: their row locks order this against pending-log inserts,
	// so the log delete below also catches rows created while it waited.
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM automation_logs WHERE organization_id = $1 AND rule_id = ANY($2)`,
		organizationID, pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("failed to delete rule logs: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rule deletion: %w", err)
	}

	return deleted, nil
}

// jsonParam passes JSON to a jsonb column as text; lib/pq would send []byte as bytea.
func jsonParam(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
