package auth

import "errors"

var (
	// ErrSecretNotConfigured means neither SEND_TOKEN nor PANEL_PASSWORD is set.
	ErrSecretNotConfigured = errors.New("no authentication secret configured")
	// ErrUnauthorized means no supplied credential matched.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPanelNotConfigured means PANEL_PASSWORD is not set.
	ErrPanelNotConfigured = errors.New("Missing PANEL_PASSWORD")
	// ErrBadPanelPassword means X-Panel-Password did not match.
	ErrBadPanelPassword = errors.New("Bad panel password")
)
