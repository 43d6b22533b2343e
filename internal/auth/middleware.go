package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/logger"
)

// RequireSendAuth rejects requests without a valid bearer token or panel password.
func RequireSendAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := a.Authenticate(c.GetHeader("Authorization"), c.GetHeader(HeaderPanelPassword))
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, ErrSecretNotConfigured):
			logger.Error("Send endpoint called but no auth secret is configured", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "kind": "configuration", "error": "Server auth is not configured"})
		default:
			logger.Warn("Rejected send request", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "kind": "auth", "error": "Unauthorized"})
		}
	}
}

// RequirePanelPassword gates the panel endpoint on X-Panel-Password alone.
func RequirePanelPassword(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := a.PanelGate(c.GetHeader(HeaderPanelPassword))
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, ErrPanelNotConfigured):
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "kind": "configuration", "error": err.Error()})
		default:
			logger.Warn("Rejected panel request", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "kind": "auth", "error": err.Error()})
		}
	}
}

// InjectSendToken sets "Authorization: Bearer <token>" so the panel can call
// the send handler without knowing the token.
func InjectSendToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Header.Set("Authorization", "Bearer "+token)
		c.Next()
	}
}
