package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey        ctxKey = "trace_id"
	MessageIDKey      ctxKey = "message_id"
	ServiceNameKey    ctxKey = "service_name"
	RequestIDKey      ctxKey = "request_id"
	OrganizationIDKey ctxKey = "organization_id"
	RuleIDKey         ctxKey = "rule_id"
)

// orderedKeys fixes the order fields appear in log lines.
var orderedKeys = []ctxKey{
	TraceIDKey,
	RequestIDKey,
	MessageIDKey,
	ServiceNameKey,
	OrganizationIDKey,
	RuleIDKey,
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithOrganizationID(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, OrganizationIDKey, organizationID)
}

func WithRuleID(ctx context.Context, ruleID string) context.Context {
	return context.WithValue(ctx, RuleIDKey, ruleID)
}

func getString(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return getString(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func GetOrganizationID(ctx context.Context) string {
	return getString(ctx, OrganizationIDKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, len(orderedKeys)*2)

	for _, key := range orderedKeys {
		if v := getString(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}

	return fields
}

// Detach copies the log fields of ctx onto a fresh background context. Work
// that outlives a request keeps its correlation ids without inheriting the
// request's cancellation.
func Detach(ctx context.Context) context.Context {
	detached := context.Background()
	for _, key := range orderedKeys {
		if v := getString(ctx, key); v != "" {
			detached = context.WithValue(detached, key, v)
		}
	}
	return detached
}
