package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/logger"
)

var redactedHeaders = map[string]bool{
	"Authorization":    true,
	"X-Panel-Password": true,
	"Cookie":           true,
	"X-Api-Key":        true,
}

// bodyLogWriter captures the response body while writing it through.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RedactHeaders flattens headers for logging with credentials masked.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if redactedHeaders[http.CanonicalHeaderKey(key)] {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = values[0]
	}
	return out
}

// EnhancedLoggingMiddleware logs request headers and the full response in
// development. Request bodies carry recipient lists so only their size is logged.
func EnhancedLoggingMiddleware(isDevelopment bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isDevelopment {
			c.Next()
			return
		}

		startTime := time.Now()
		log := logger.L().With(zap.String("correlation_id", GetCorrelationID(c)))

		var bodySize int
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				log.Debug("Failed to read request body", zap.Error(err))
			}
			bodySize = len(body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		log.Info("Detailed request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Any("headers", RedactHeaders(c.Request.Header)),
			zap.Int("body_size", bodySize),
		)

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("body_size", blw.body.Len()),
		}
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "application/json") {
			fields = append(fields, zap.String("body", blw.body.String()))
		}
		log.Info("Detailed response", fields...)

		for _, err := range c.Errors {
			log.Error("Request error", zap.Error(err.Err), zap.Uint64("type", uint64(err.Type)))
		}
	}
}

// RequestLoggingMiddleware provides basic request logging for production
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.Info("Request completed",
			zap.String("correlation_id", GetCorrelationID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(startTime)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		)
	}
}
