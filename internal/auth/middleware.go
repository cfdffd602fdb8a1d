package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sdrops/pkg/errors"
	"sdrops/pkg/logging"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// RequireOrganization verifies the bearer token and places the caller's
// identity on the request context. Requests without a resolvable organization
// are rejected with 401.
func RequireOrganization(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if !strings.HasPrefix(raw, bearerPrefix) {
			abortUnauthorized(c)
			return
		}

		claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), time.Now())
		if err != nil {
			_ = c.Error(err)
			abortUnauthorized(c)
			return
		}

		ctx := WithIdentity(c.Request.Context(), Identity{
			UserID:         claims.UserID,
			OrganizationID: claims.OrganizationID,
			Email:          claims.Email,
		})
		ctx = logging.WithOrganizationID(ctx, claims.OrganizationID)
		c.Request = c.Request.WithContext(ctx)

		c.Set("user_id", claims.UserID)
		c.Set("organization_id", claims.OrganizationID)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ToErrorResponse(errors.ErrUnauthorized))
}
