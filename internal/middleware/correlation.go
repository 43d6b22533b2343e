package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/logger"
)

// CorrelationIDHeader carries the request's correlation ID in both directions.
const CorrelationIDHeader = "X-Correlation-ID"

// maxCorrelationIDLen bounds a caller-supplied ID before it reaches logs
// and response headers.
const maxCorrelationIDLen = 128

type correlationKey struct{}

// CorrelationIDMiddleware tags the request with the caller's X-Correlation-ID,
// or a fresh UUID when the header is missing or unusable, and echoes it back.
// The ID lives in the request context so code below the handlers can log it.
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if !usableCorrelationID(id) {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(WithCorrelationID(c.Request.Context(), id))
		c.Header(CorrelationIDHeader, id)

		LogWithCorrelationID(c.Request.Context()).Debug("Request received",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))

		c.Next()
	}
}

// usableCorrelationID accepts short, printable ASCII IDs.
func usableCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetCorrelationID is the gin form of CorrelationIDFromContext.
func GetCorrelationID(c *gin.Context) string {
	return CorrelationIDFromContext(c.Request.Context())
}

// WithCorrelationID returns a copy of ctx carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the ID set by WithCorrelationID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// LogWithCorrelationID returns the global logger, tagged with the
// correlation ID when ctx has one. It never returns nil.
func LogWithCorrelationID(ctx context.Context) *zap.Logger {
	id := CorrelationIDFromContext(ctx)
	if id == "" {
		return logger.L()
	}
	return logger.L().With(zap.String("correlation_id", id))
}
