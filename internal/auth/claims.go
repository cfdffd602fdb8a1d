package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the bearer token payload. OrganizationID scopes every rule and log
// query made with the token.
type Claims struct {
	jwt.RegisteredClaims

	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email,omitempty"`
}
