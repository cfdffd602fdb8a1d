package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskEnvelopeBuilder(t *testing.T) {
	env, err := NewTaskEnvelopeBuilder().
		WithID("task-1").
		WithKind("automation.dispatch").
		WithSource("automation-api").
		WithOrganizationID("org-1").
		WithPayload(map[string]string{"export_id": "e1"}).
		Build()
	require.NoError(t, err)

	assert.False(t, env.Timestamp.IsZero())
	assert.Equal(t, "org-1", env.Metadata.OrganizationID)

	var payload map[string]string
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "e1", payload["export_id"])
}

func TestTaskEnvelopeBuilderValidation(t *testing.T) {
	tests := []struct {
		name      string
		builder   *TaskEnvelopeBuilder
		wantField string
	}{
		{
			name:      "missing id",
			builder:   NewTaskEnvelopeBuilder().WithKind("k").WithPayload(1),
			wantField: "id",
		},
		{
			name:      "missing kind",
			builder:   NewTaskEnvelopeBuilder().WithID("x").WithPayload(1),
			wantField: "kind",
		},
		{
			name:      "missing payload",
			builder:   NewTaskEnvelopeBuilder().WithID("x").WithKind("k"),
			wantField: "payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			require.Error(t, err)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}
