package models

import (
	"encoding/json"
	"time"
)

// TaskEnvelope is the wire format of a unit of work on the dispatch queue.
type TaskEnvelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

type Metadata struct {
	TraceID        string   `json:"trace_id,omitempty"`
	RequestID      string   `json:"request_id,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`
	DeadLetter     *DLQInfo `json:"dead_letter,omitempty"`
}

type DLQInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	FailedAt    time.Time `json:"failed_at"`
}

// DecodePayload unmarshals the payload into v.
func (e *TaskEnvelope) DecodePayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
