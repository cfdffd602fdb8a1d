package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type TaskEnvelopeBuilder struct {
	envelope *TaskEnvelope
	err      error
}

func NewTaskEnvelopeBuilder() *TaskEnvelopeBuilder {
	return &TaskEnvelopeBuilder{
		envelope: &TaskEnvelope{
			Metadata: Metadata{},
		},
	}
}

func (b *TaskEnvelopeBuilder) WithID(id string) *TaskEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *TaskEnvelopeBuilder) WithKind(kind string) *TaskEnvelopeBuilder {
	b.envelope.Kind = kind
	return b
}

func (b *TaskEnvelopeBuilder) WithSource(source string) *TaskEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *TaskEnvelopeBuilder) WithTimestamp(timestamp time.Time) *TaskEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

// WithPayload marshals payload as the envelope body.
func (b *TaskEnvelopeBuilder) WithPayload(payload interface{}) *TaskEnvelopeBuilder {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.err = fmt.Errorf("failed to marshal task payload: %w", err)
		return b
	}
	b.envelope.Payload = raw
	return b
}

func (b *TaskEnvelopeBuilder) WithTraceID(traceID string) *TaskEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

func (b *TaskEnvelopeBuilder) WithRequestID(requestID string) *TaskEnvelopeBuilder {
	b.envelope.Metadata.RequestID = requestID
	return b
}

func (b *TaskEnvelopeBuilder) WithOrganizationID(organizationID string) *TaskEnvelopeBuilder {
	b.envelope.Metadata.OrganizationID = organizationID
	return b
}

func (b *TaskEnvelopeBuilder) Build() (*TaskEnvelope, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now().UTC()
	}
	if err := ValidateTaskEnvelope(b.envelope); err != nil {
		return nil, err
	}
	return b.envelope, nil
}
