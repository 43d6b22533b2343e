package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	hashed, err := HashSecret("hashed-token")
	require.NoError(t, err)

	tests := []struct {
		name    string
		auth    Authenticator
		bearer  string
		panel   string
		wantErr error
	}{
		{"nothing configured", Authenticator{}, "Bearer x", "x", ErrSecretNotConfigured},
		{"bearer matches", Authenticator{SendToken: "tok"}, "Bearer tok", "", nil},
		{"bearer case-insensitive scheme", Authenticator{SendToken: "tok"}, "bearer tok", "", nil},
		{"bearer mismatch", Authenticator{SendToken: "tok"}, "Bearer nope", "", ErrUnauthorized},
		{"no headers", Authenticator{SendToken: "tok", PanelPassword: "pw"}, "", "", ErrUnauthorized},
		{"panel matches", Authenticator{SendToken: "tok", PanelPassword: "pw"}, "", "pw", nil},
		{"panel mismatch", Authenticator{PanelPassword: "pw"}, "", "wrong", ErrUnauthorized},
		{"empty bearer never matches unset token", Authenticator{PanelPassword: "pw"}, "Bearer ", "", ErrUnauthorized},
		{"basic scheme rejected", Authenticator{SendToken: "tok"}, "Basic tok", "", ErrUnauthorized},
		{"bcrypt secret", Authenticator{SendToken: hashed}, "Bearer hashed-token", "", nil},
		{"bcrypt secret mismatch", Authenticator{SendToken: hashed}, "Bearer " + hashed, "", ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.auth.Authenticate(tt.bearer, tt.panel)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPanelGate(t *testing.T) {
	assert.ErrorIs(t, Authenticator{}.PanelGate("pw"), ErrPanelNotConfigured)
	assert.ErrorIs(t, Authenticator{PanelPassword: "pw"}.PanelGate(""), ErrBadPanelPassword)
	assert.ErrorIs(t, Authenticator{PanelPassword: "pw"}.PanelGate("nope"), ErrBadPanelPassword)
	assert.NoError(t, Authenticator{PanelPassword: "pw"}.PanelGate("pw"))
}

func TestIsBcryptHash(t *testing.T) {
	h, err := HashSecret("s")
	require.NoError(t, err)
	assert.True(t, IsBcryptHash(h))
	assert.False(t, IsBcryptHash("$2a$short"))
	assert.False(t, IsBcryptHash("plain-secret"))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(a Authenticator) *gin.Engine {
		r := gin.New()
		r.POST("/api/send", RequireSendAuth(a), func(c *gin.Context) { c.String(http.StatusOK, "sent") })
		r.POST("/api/panel-send", RequirePanelPassword(a), InjectSendToken(a.SendToken), RequireSendAuth(a), func(c *gin.Context) {
			c.String(http.StatusOK, c.GetHeader("Authorization"))
		})
		return r
	}

	tests := []struct {
		name       string
		auth       Authenticator
		path       string
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{"send ok", Authenticator{SendToken: "tok"}, "/api/send", map[string]string{"Authorization": "Bearer tok"}, http.StatusOK, "sent"},
		{"send unauthorized", Authenticator{SendToken: "tok"}, "/api/send", nil, http.StatusUnauthorized, `"error":"Unauthorized"`},
		{"send unconfigured", Authenticator{}, "/api/send", nil, http.StatusInternalServerError, `"kind":"configuration"`},
		{"panel unconfigured", Authenticator{SendToken: "tok"}, "/api/panel-send", map[string]string{HeaderPanelPassword: "pw"}, http.StatusInternalServerError, "Missing PANEL_PASSWORD"},
		{"panel bad password", Authenticator{SendToken: "tok", PanelPassword: "pw"}, "/api/panel-send", map[string]string{HeaderPanelPassword: "no"}, http.StatusUnauthorized, "Bad panel password"},
		{"panel injects token", Authenticator{SendToken: "tok", PanelPassword: "pw"}, "/api/panel-send", map[string]string{HeaderPanelPassword: "pw", "Authorization": "Bearer spoofed"}, http.StatusOK, "Bearer tok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			newRouter(tt.auth).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
