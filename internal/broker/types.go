package broker

import (
	"context"

	"sdrops/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.TaskEnvelope) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one task. Returning an error schedules a retry unless
// the error is fatal.
type HandlerFunc func(ctx context.Context, msg models.TaskEnvelope) error
