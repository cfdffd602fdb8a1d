package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"sdrops/pkg/logging"
)

func TestContextFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)
	log.SetServiceName("automation-api")

	ctx := logging.WithOrganizationID(context.Background(), "org-1")
	ctx = logging.WithRequestID(ctx, "req-7")

	log.InfowCtx(ctx, "rule created", "rule_id", "r-1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "org-1", fields["organization_id"])
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "automation-api", fields["service_name"])
	assert.Equal(t, "r-1", fields["rule_id"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"unknown": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNew(t *testing.T) {
	log, err := New("debug", "json")
	require.NoError(t, err)
	assert.NotNil(t, log)

	console, err := New("info", "console")
	require.NoError(t, err)
	assert.NotNil(t, console)
}
