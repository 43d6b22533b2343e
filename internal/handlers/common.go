package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/middleware"
)

// Error kinds reported in ErrorResponse.Kind.
const (
	KindValidation    = "validation"
	KindAuth          = "auth"
	KindConfiguration = "configuration"
	KindTransport     = "transport"
	KindInternal      = "internal"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
}

// sendError logs err with request context and writes a sanitized body.
// Validation messages are safe to return as-is; everything else carries
// only message.
func sendError(c *gin.Context, statusCode int, kind, message string, err error) {
	log := middleware.LogWithCorrelationID(c.Request.Context())
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if statusCode >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}
	c.JSON(statusCode, ErrorResponse{OK: false, Kind: kind, Error: message})
}

// sendValidationError writes a 400 with kind validation.
func sendValidationError(c *gin.Context, message string, err error) {
	sendError(c, http.StatusBadRequest, KindValidation, message, err)
}

// MethodNotAllowed answers any non-POST call on the send endpoints.
func MethodNotAllowed(c *gin.Context) {
	c.Header("Allow", http.MethodPost)
	c.JSON(http.StatusMethodNotAllowed, gin.H{"ok": false, "error": "POST only"})
}

// NotFound keeps 404 bodies in the same shape as every other error.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{OK: false, Error: "Not found"})
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
