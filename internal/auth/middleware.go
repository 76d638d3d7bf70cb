package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"hr-suite/pkg/logger"
)

const bearerPrefix = "Bearer "

// Gin context keys set for handlers and the request logger.
const (
	KeyPrincipal = "user_id"
	KeyRole      = "role"
)

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform capability checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		tok, ok := strings.CutPrefix(raw, bearerPrefix)
		if !ok || strings.TrimSpace(tok) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthorized"})
			return
		}

		claims, err := m.Verify(strings.TrimSpace(tok), TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).DebugContext(c.Request.Context(), "token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
			return
		}

		principal := claims.Principal()
		ctx := WithIdentity(c.Request.Context(), principal, claims.Role)
		ctx = logger.With(ctx, logger.From(ctx).With("principal", principal))
		c.Request = c.Request.WithContext(ctx)

		c.Set(KeyPrincipal, principal)
		c.Set(KeyRole, claims.Role)

		c.Next()
	}
}
