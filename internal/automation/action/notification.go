package action

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sdrops/internal/automation"
	"sdrops/internal/logger"
	"sdrops/pkg/metrics"
)

const (
	defaultNotifyMessage = `Rule "{rule_name}" matched export {export_id} (added: {added_tags})`
	DefaultChannelPrefix = "automation:notifications:"
)

type Notification struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	RuleID         string    `json:"rule_id"`
	ExportID       string    `json:"export_id"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	DispatchID     string    `json:"dispatch_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type NotificationStore interface {
	// Insert stores n unless a notification with the same dispatch id exists,
	// and returns the stored row either way.
	Insert(ctx context.Context, n Notification) (Notification, error)
}

type PostgresNotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *PostgresNotificationStore {
	return &PostgresNotificationStore{db: db}
}

func (s *PostgresNotificationStore) Insert(ctx context.Context, n Notification) (stored Notification, err error) {
	defer func(start time.Time) { metrics.ObserveDatabaseQuery("notifications.insert", start, err) }(time.Now())

	stored = n
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO automation_notifications (id, organization_id, rule_id, export_id, severity, message, dispatch_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dispatch_id) DO UPDATE SET dispatch_id = EXCLUDED.dispatch_id
		RETURNING id, created_at`,
		n.ID, n.OrganizationID, n.RuleID, n.ExportID, n.Severity, n.Message, n.DispatchID, n.CreatedAt,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to insert notification: %w", err)
	}
	return stored, nil
}

// Notifications records an in-app notification and announces it on redis for
// connected clients.
type Notifications struct {
	store         NotificationStore
	redis         *redis.Client
	channelPrefix string
	logger        logger.Logger
}

func NewNotifications(store NotificationStore, client *redis.Client, channelPrefix string, log logger.Logger) *Notifications {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &Notifications{store: store, redis: client, channelPrefix: channelPrefix, logger: log}
}

type NotificationResult struct {
	NotificationID string `json:"notification_id"`
	Severity       string `json:"severity"`
}

func (n *Notifications) Channel(organizationID string) string {
	return n.channelPrefix + organizationID
}

func (n *Notifications) Execute(ctx context.Context, task automation.DispatchTask, cfg automation.ActionConfig) (interface{}, error) {
	if cfg.Notification == nil {
		return nil, fmt.Errorf("missing in_app_notification config")
	}

	tmpl := cfg.Notification.NotifyMessage
	if tmpl == "" {
		tmpl = defaultNotifyMessage
	}

	stored, err := n.store.Insert(ctx, Notification{
		ID:             uuid.NewString(),
		OrganizationID: task.OrganizationID,
		RuleID:         task.Rule.ID,
		ExportID:       task.Event.ExportID,
		Severity:       cfg.Notification.Severity,
		Message:        automation.RenderTemplate(tmpl, task.Rule, task.Event),
		DispatchID:     task.ID,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	n.publish(ctx, stored)

	return NotificationResult{NotificationID: stored.ID, Severity: stored.Severity}, nil
}

func (n *Notifications) publish(ctx context.Context, stored Notification) {
	if n.redis == nil {
		return
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		n.logger.WarnwCtx(ctx, "Failed to encode notification", "error", err)
		return
	}

	channel := n.Channel(stored.OrganizationID)
	if err := n.redis.Publish(ctx, channel, raw).Err(); err != nil {
		n.logger.WarnwCtx(ctx, "Failed to publish notification",
			"channel", channel,
			"notification_id", stored.ID,
			"error", err,
		)
	}
}
