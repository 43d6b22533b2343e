package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// HeaderPanelPassword carries the panel password.
	HeaderPanelPassword = "X-Panel-Password"
	// BcryptCost is the cost used by HashSecret.
	BcryptCost = 10
)

// Authenticator checks request credentials against the configured shared secrets.
type Authenticator struct {
	SendToken     string
	PanelPassword string
}

// Authenticate accepts "Bearer <SEND_TOKEN>" in authorization or the panel
// password in panelPassword. It returns ErrSecretNotConfigured when no
// secret is set and ErrUnauthorized when nothing matches.
func (a Authenticator) Authenticate(authorization, panelPassword string) error {
	if a.SendToken == "" && a.PanelPassword == "" {
		return ErrSecretNotConfigured
	}
	if token := BearerToken(authorization); token != "" && a.SendToken != "" && SecretMatches(a.SendToken, token) {
		return nil
	}
	if panelPassword != "" && a.PanelPassword != "" && SecretMatches(a.PanelPassword, panelPassword) {
		return nil
	}
	return ErrUnauthorized
}

// PanelGate checks only the panel password.
func (a Authenticator) PanelGate(panelPassword string) error {
	if a.PanelPassword == "" {
		return ErrPanelNotConfigured
	}
	if panelPassword == "" || !SecretMatches(a.PanelPassword, panelPassword) {
		return ErrBadPanelPassword
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// SecretMatches compares given with the configured secret. A configured
// value in bcrypt form is verified with bcrypt, anything else in constant time.
func SecretMatches(configured, given string) bool {
	if IsBcryptHash(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(given)) == nil
	}
	a := sha256.Sum256([]byte(configured))
	b := sha256.Sum256([]byte(given))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// IsBcryptHash reports whether s looks like a bcrypt hash.
func IsBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// HashSecret returns a bcrypt hash suitable for SEND_TOKEN or PANEL_PASSWORD.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
