package action

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sdrops/internal/automation"
	"sdrops/pkg/metrics"
)

type Escalation struct {
	ID             string
	OrganizationID string
	ExportID       string
	Priority       string
	RuleID         string
	Reason         string
}

type EscalationStore interface {
	// Upsert opens or refreshes the escalation of an export. An existing
	// escalation keeps its priority when the new one ranks lower.
	Upsert(ctx context.Context, e Escalation) (Escalation, error)
}

type PostgresEscalationStore struct {
	db *sql.DB
}

func NewEscalationStore(db *sql.DB) *PostgresEscalationStore {
	return &PostgresEscalationStore{db: db}
}

func (s *PostgresEscalationStore) Upsert(ctx context.Context, e Escalation) (stored Escalation, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("escalations.upsert", start, err) }(time.Now())

	stored = e
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO export_escalations (id, organization_id, export_id, priority, rule_id, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'open', NOW(), NOW())
		ON CONFLICT (organization_id, export_id) DO UPDATE SET
			priority = CASE
				WHEN array_position($7::text[], EXCLUDED.priority) > COALESCE(array_position($7::text[], export_escalations.priority), 0)
				THEN EXCLUDED.priority
				ELSE export_escalations.priority
			END,
			rule_id = EXCLUDED.rule_id,
			reason = EXCLUDED.reason,
			status = 'open',
			updated_at = NOW()
		RETURNING id, priority`,
		e.ID, e.OrganizationID, e.ExportID, e.Priority, e.RuleID, e.Reason, pq.Array(automation.Priorities),
	).Scan(&stored.ID, &stored.Priority)
	if err != nil {
		return Escalation{}, fmt.Errorf("failed to upsert escalation: %w", err)
	}
	return stored, nil
}

// Escalations flags an export for priority review.
type Escalations struct {
	store EscalationStore
}

func NewEscalations(store EscalationStore) *Escalations {
	return &Escalations{store: store}
}

type EscalationResult struct {
	EscalationID string `json:"escalation_id"`
	Priority     string `json:"priority"`
}

func (e *Escalations) Execute(ctx context.Context, task automation.DispatchTask, cfg automation.ActionConfig) (interface{}, error) {
	if cfg.Escalation == nil {
		return nil, fmt.Errorf("missing escalate_review config")
	}

	stored, err := e.store.Upsert(ctx, Escalation{
		ID:             uuid.NewString(),
		OrganizationID: task.OrganizationID,
		ExportID:       task.Event.ExportID,
		Priority:       cfg.Escalation.Priority,
		RuleID:         task.Rule.ID,
		Reason:         automation.RenderTemplate(`Rule "{rule_name}" added {added_tags}`, task.Rule, task.Event),
	})
	if err != nil {
		return nil, err
	}

	return EscalationResult{EscalationID: stored.ID, Priority: stored.Priority}, nil
}
