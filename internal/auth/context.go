package auth

import (
	"context"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxOrganizationID
	ctxEmail
)

// Identity is the authenticated caller.
type Identity struct {
	UserID         string
	OrganizationID string
	Email          string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxOrganizationID, id.OrganizationID)
	ctx = context.WithValue(ctx, ctxEmail, id.Email)
	return ctx
}

func stringValue(ctx context.Context, key ctxKey) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

func UserID(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func OrganizationID(ctx context.Context) string {
	return stringValue(ctx, ctxOrganizationID)
}

// IdentityFrom returns the caller stored by the auth middleware. ok is false
// when the request carries no organization.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id := Identity{
		UserID:         stringValue(ctx, ctxUserID),
		OrganizationID: stringValue(ctx, ctxOrganizationID),
		Email:          stringValue(ctx, ctxEmail),
	}
	return id, id.OrganizationID != ""
}
