package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	ginLoggerKey    = "logger"

	// principalKey is set on the gin context by the auth middleware.
	principalKey = "user_id"
)

// Middleware tags each request with a request_id and writes one summary line
// when it completes. 4xx responses log at warn, 5xx and handler errors at error.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Set(ginLoggerKey, reqLogger)
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLogger))

		c.Next()

		reqLogger.Log(c.Request.Context(), levelFor(c), "request", summary(c, time.Since(start))...)
	}
}

func summary(c *gin.Context, dur time.Duration) []any {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	attrs := []any{
		"method", c.Request.Method,
		"path", route,
		"status", c.Writer.Status(),
		"duration_ms", float64(dur.Microseconds()) / 1000,
	}
	if who := c.GetString(principalKey); who != "" {
		attrs = append(attrs, "principal", who)
	}
	if len(c.Errors) > 0 {
		attrs = append(attrs, "errors", c.Errors.String())
	}
	return attrs
}

func levelFor(c *gin.Context) slog.Level {
	switch status := c.Writer.Status(); {
	case len(c.Errors) > 0, status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// FromGin pulls the request-scoped logger from Gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return From(contextOf(c))
}

func contextOf(c *gin.Context) context.Context {
	if c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
