package rbac

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-suite/internal/auth"
)

// RequireCapability allows access if the caller's role grants op.
// Rules:
// - system_admin bypasses all checks
// - roles outside the closed set are denied
// - identity must already be in context (auth.RequireAccessToken runs first)
func RequireCapability(op Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.Role(c.Request.Context())
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		role, err := ParseRole(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		if !Can(role, op) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CallerRole returns the parsed role of the authenticated caller.
func CallerRole(c *gin.Context) Role {
	raw, err := auth.Role(c.Request.Context())
	if err != nil {
		return ""
	}
	r, err := ParseRole(raw)
	if err != nil {
		return ""
	}
	return r
}
