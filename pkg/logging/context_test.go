package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFieldsOrder(t *testing.T) {
	ctx := context.Background()
	ctx = WithRuleID(ctx, "rule-1")
	ctx = WithOrganizationID(ctx, "org-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRequestID(ctx, "req-1")

	assert.Equal(t, []interface{}{
		"trace_id", "trace-1",
		"request_id", "req-1",
		"organization_id", "org-1",
		"rule_id", "rule-1",
	}, GetLogFields(ctx))
}

func TestGetLogFieldsEmpty(t *testing.T) {
	assert.Empty(t, GetLogFields(context.Background()))
}

func TestDetachKeepsFieldsDropsCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	parent = WithOrganizationID(parent, "org-9")
	parent = WithMessageID(parent, "msg-9")
	cancel()

	detached := Detach(parent)

	assert.NoError(t, detached.Err())
	assert.Equal(t, "org-9", GetOrganizationID(detached))
	assert.Equal(t, "msg-9", GetMessageID(detached))
}
