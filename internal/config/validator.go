package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateAuth(cfg.Auth); err != nil {
		errors = append(errors, err)
	}

	if err := validateDispatch(cfg.Dispatch, cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateAnalytics(cfg.Analytics); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "", "none":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, none)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.DispatchTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.dispatch_topic",
			Message: "dispatch topic is required",
		}
	}

	return validateRetry("broker.kafka.retry", cfg.Retry)
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   prefix + ".max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   prefix + ".multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if err := validatePostgres(cfg.Postgres); err != nil {
		return err
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateAuth(cfg AuthConfig) error {
	if cfg.JWTSecret == "" {
		return &ValidationError{
			Field:   "auth.jwt_secret",
			Message: "JWT secret is required",
		}
	}

	if len(cfg.JWTSecret) < 16 {
		return &ValidationError{
			Field:   "auth.jwt_secret",
			Message: "JWT secret must be at least 16 characters",
		}
	}

	return nil
}

func validateDispatch(cfg DispatchConfig, broker BrokerConfig) error {
	switch cfg.Runtime {
	case RuntimeInline:
		if cfg.Workers < 1 {
			return &ValidationError{
				Field:   "dispatch.workers",
				Message: "at least one worker is required for the inline runtime",
			}
		}
		if cfg.QueueSize < 1 {
			return &ValidationError{
				Field:   "dispatch.queue_size",
				Message: "queue size must be positive",
			}
		}
	case RuntimeKafka:
		if broker.Type != "kafka" {
			return &ValidationError{
				Field:   "dispatch.runtime",
				Message: "kafka runtime requires broker.type=kafka",
			}
		}
	default:
		return &ValidationError{
			Field:   "dispatch.runtime",
			Message: fmt.Sprintf("unknown dispatch runtime: %s (supported: inline, kafka)", cfg.Runtime),
		}
	}

	if cfg.ActionTimeout <= 0 {
		return &ValidationError{
			Field:   "dispatch.action_timeout",
			Message: "action timeout must be positive",
		}
	}

	if cfg.StalePendingAfter < 0 {
		return &ValidationError{
			Field:   "dispatch.stale_pending_after",
			Message: "stale_pending_after must be non-negative",
		}
	}

	return validateRetry("dispatch.retry", cfg.Retry)
}

func validateAnalytics(cfg AnalyticsConfig) error {
	if cfg.CacheTTL < 0 {
		return &ValidationError{
			Field:   "analytics.cache_ttl",
			Message: "cache TTL must be non-negative",
		}
	}

	if cfg.MaxRows <= 0 {
		return &ValidationError{
			Field:   "analytics.max_rows",
			Message: "max_rows must be positive",
		}
	}

	return nil
}
