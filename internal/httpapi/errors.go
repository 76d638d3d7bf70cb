package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-suite/internal/workflow"
	"hr-suite/pkg/logger"
)

const codeForbidden = "forbidden"

// statusFor maps stable error codes to HTTP statuses.
func statusFor(code string) int {
	switch code {
	case workflow.CodeNotFound:
		return http.StatusNotFound
	case workflow.CodeInvalidTransition, workflow.CodeConflict, workflow.CodeDecisionAlreadyMade:
		return http.StatusConflict
	case workflow.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders the engine error envelope. Internal errors are logged
// with detail and answered with a generic message.
func writeError(c *gin.Context, err error) {
	code := workflow.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		logger.From(c.Request.Context()).ErrorContext(c.Request.Context(), "request failed", "code", code, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": workflow.PublicMessage(err), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": workflow.CodeValidation})
}

func forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg, "code": codeForbidden})
}
