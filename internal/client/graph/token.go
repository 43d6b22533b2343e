package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/n42group/mailmerge/internal/logger"
)

// DefaultScope requests every application permission granted to the app.
const DefaultScope = "https://graph.microsoft.com/.default"

// RefreshSkew is how long before expiry a cached token is considered stale.
const RefreshSkew = 60 * time.Second

// ErrMissingCredentials is returned when tenant, client ID or secret is empty.
var ErrMissingCredentials = errors.New("graph tenant, client id and client secret are required")

// TokenSource yields bearer tokens for Graph calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenProviderConfig identifies the Azure AD application.
type TokenProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// AuthorityURL defaults to https://login.microsoftonline.com.
	AuthorityURL string
	// HTTPClient is used for the token request when set.
	HTTPClient *http.Client
}

// TokenProvider performs the client-credentials grant and caches the token
// until RefreshSkew before it expires. Safe for concurrent use.
type TokenProvider struct {
	cc         *clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenProvider validates cfg and builds a provider.
func NewTokenProvider(cfg TokenProviderConfig) (*TokenProvider, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	authority := strings.TrimSuffix(cfg.AuthorityURL, "/")
	if authority == "" {
		authority = "https://login.microsoftonline.com"
	}

	return &TokenProvider{
		cc: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, cfg.TenantID),
			Scopes:       []string{DefaultScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: cfg.HTTPClient,
		now:        time.Now,
	}, nil
}

// TokenURL returns the token endpoint the provider calls.
func (p *TokenProvider) TokenURL() string {
	return p.cc.TokenURL
}

// AccessToken returns a cached token or fetches a new one.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fresh() {
		return p.token.AccessToken, nil
	}

	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	tok, err := p.cc.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("graph token request failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("graph token response had no access_token")
	}

	p.token = tok
	logger.Debug("Fetched Graph access token", zap.Time("expiry", tok.Expiry))
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
}

func (p *TokenProvider) fresh() bool {
	if p.token == nil || p.token.AccessToken == "" {
		return false
	}
	// zero expiry means the server did not send expires_in
	if p.token.Expiry.IsZero() {
		return true
	}
	return p.now().Add(RefreshSkew).Before(p.token.Expiry)
}
