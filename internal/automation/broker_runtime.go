package automation

import (
	"context"
	"fmt"

	"sdrops/internal/broker"
	"sdrops/internal/constants"
	pkgerrors "sdrops/pkg/errors"
	"sdrops/pkg/logging"
	"sdrops/pkg/models"
	"sdrops/pkg/retry"
	"sdrops/pkg/tracing"
)

// BrokerRuntime hands tasks to the dispatch-worker through a message broker.
type BrokerRuntime struct {
	producer broker.Producer
	topic    string
	source   string
}

func NewBrokerRuntime(producer broker.Producer, topic, source string) *BrokerRuntime {
	return &BrokerRuntime{producer: producer, topic: topic, source: source}
}

func (r *BrokerRuntime) Submit(ctx context.Context, task DispatchTask) error {
	envelope, err := NewTaskEnvelope(ctx, task, r.source)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	if err := r.producer.Publish(ctx, r.topic, *envelope); err != nil {
		return pkgerrors.ErrServiceUnavailable.WithCause(err).WithMessage("failed to enqueue dispatch task")
	}
	return nil
}

// Close is a no-op; the producer belongs to the process bootstrap.
func (r *BrokerRuntime) Close() error {
	return nil
}

func NewTaskEnvelope(ctx context.Context, task DispatchTask, source string) (*models.TaskEnvelope, error) {
	return models.NewTaskEnvelopeBuilder().
		WithID(task.ID).
		WithKind(constants.TaskKindDispatch).
		WithSource(source).
		WithTimestamp(task.SubmittedAt).
		WithTraceID(tracing.TraceID(ctx)).
		WithRequestID(logging.GetRequestID(ctx)).
		WithOrganizationID(task.OrganizationID).
		WithPayload(task).
		Build()
}

// NewTaskHandler adapts a step handler to broker messages. Envelopes that can
// never be processed are marked fatal so the consumer dead-letters them.
func NewTaskHandler(step StepHandler) broker.HandlerFunc {
	return func(ctx context.Context, msg models.TaskEnvelope) error {
		if msg.Kind != constants.TaskKindDispatch {
			return retry.NewFatalError(fmt.Errorf("unexpected task kind %q", msg.Kind))
		}

		var task DispatchTask
		if err := msg.DecodePayload(&task); err != nil {
			return retry.NewFatalError(fmt.Errorf("failed to decode dispatch task: %w", err))
		}
		if task.ID != msg.ID {
			return retry.NewFatalError(fmt.Errorf("task id %q does not match envelope id %q", task.ID, msg.ID))
		}

		return step(ctx, task)
	}
}
