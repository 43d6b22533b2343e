package mail

import (
	"fmt"

	httpclient "github.com/n42group/mailmerge/internal/client/http"
	"github.com/n42group/mailmerge/internal/client/graph"
	"github.com/n42group/mailmerge/internal/config"
)

// NewTransport builds the transport selected by MAIL_PROVIDER. A *ConfigError
// is returned when provider settings are incomplete.
func NewTransport(cfg *config.Config) (Transport, error) {
	switch cfg.MailProvider {
	case config.ProviderSMTP, "":
		if m := missing("SMTP_HOST", cfg.SMTP.Host, "SMTP_USER", cfg.SMTP.User, "SMTP_PASS", cfg.SMTP.Pass); len(m) > 0 {
			return nil, &ConfigError{Provider: config.ProviderSMTP, Missing: m}
		}
		return NewSMTPTransport(cfg.SMTP), nil

	case config.ProviderGraph:
		g := cfg.Graph
		if m := missing(
			"GRAPH_TENANT_ID", g.TenantID,
			"GRAPH_CLIENT_ID", g.ClientID,
			"GRAPH_CLIENT_SECRET", g.ClientSecret,
			"GRAPH_SENDER", g.Sender,
		); len(m) > 0 {
			return nil, &ConfigError{Provider: config.ProviderGraph, Missing: m}
		}
		tokens, err := graph.NewTokenProvider(graph.TokenProviderConfig{
			TenantID:     g.TenantID,
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			AuthorityURL: g.AuthorityURL,
		})
		if err != nil {
			return nil, err
		}
		client := graph.NewClient(g.BaseURL, tokens,
			httpclient.WithTimeout(cfg.SendTimeout),
			httpclient.WithMiddleware(httpclient.LoggingMiddleware()),
		)
		return NewGraphTransport(client, g.Sender), nil

	case config.ProviderResend:
		if m := missing("RESEND_API_KEY", cfg.ResendAPIKey, "FROM_EMAIL", cfg.FromEmail); len(m) > 0 {
			return nil, &ConfigError{Provider: config.ProviderResend, Missing: m}
		}
		return NewResendTransport(cfg.ResendAPIKey), nil

	default:
		return nil, &ConfigError{Provider: cfg.MailProvider, Missing: []string{fmt.Sprintf("MAIL_PROVIDER (unknown value %q)", cfg.MailProvider)}}
	}
}
