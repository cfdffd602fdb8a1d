package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateTaskEnvelope(msg *TaskEnvelope) error {
	if msg == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "task envelope cannot be nil",
		}
	}

	if msg.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "task ID is required",
		}
	}

	if msg.Kind == "" {
		return &ValidationError{
			Field:   "kind",
			Message: "task kind is required",
		}
	}

	if msg.Timestamp.IsZero() {
		return &ValidationError{
			Field:   "timestamp",
			Message: "task timestamp is required",
		}
	}

	if len(msg.Payload) == 0 {
		return &ValidationError{
			Field:   "payload",
			Message: "task payload cannot be empty",
		}
	}

	return nil
}
