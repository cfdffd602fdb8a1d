package action

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"sdrops/internal/automation"
	"sdrops/internal/config"
	"sdrops/internal/logger"
)

// NewDispatcher builds a dispatcher with every action executor registered.
// client may be nil, in which case notifications are stored but not published.
func NewDispatcher(cfg *config.Config, db *sql.DB, client *redis.Client, log logger.Logger) *automation.Dispatcher {
	d := automation.NewDispatcher(automation.NewLogRepository(db), cfg.Dispatch.ActionTimeout, log)
	d.Register(automation.ActionGitHubIssue, NewGitHubIssues(cfg.Actions.GitHub, cfg.CircuitBreaker))
	d.Register(automation.ActionInAppNotification,
		NewNotifications(NewNotificationStore(db), client, cfg.Actions.Notifications.RedisChannelPrefix, log))
	d.Register(automation.ActionEscalateReview, NewEscalations(NewEscalationStore(db)))
	return d
}
