package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	awsclient "github.com/n42group/mailmerge/internal/client/aws"
	"github.com/n42group/mailmerge/internal/helpers"
)

// Mail providers selectable through MAIL_PROVIDER.
const (
	ProviderSMTP   = "smtp"
	ProviderGraph  = "graph"
	ProviderResend = "resend"
)

const (
	DefaultPort           = "8000"
	DefaultSMTPPort       = 587
	DefaultFromName       = "N42 Group"
	DefaultSubject        = "Wiadomość"
	DefaultBatchSize      = 30
	DefaultDelayMs        = 4000
	DefaultBatchDelayMs   = 10000
	DefaultSendTimeout    = 30 * time.Second
	DefaultMaxBodyBytes   = 5 << 20
	DefaultRateLimitRPS   = 1
	DefaultRateLimitBurst = 5

	DefaultGraphAuthorityURL = "https://login.microsoftonline.com"
	DefaultGraphBaseURL      = "https://graph.microsoft.com"
)

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Pass               string
	InsecureSkipVerify bool
}

// GraphConfig holds the Azure AD application used for client-credentials sends.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
	AuthorityURL string
	BaseURL      string
}

// CORSConfig mirrors the CORS_* variables.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
}

// Config is the fully resolved process configuration.
type Config struct {
	Stage    string
	LogLevel string
	Port     string

	MailProvider string
	SMTP         SMTPConfig
	Graph        GraphConfig
	ResendAPIKey string

	FromName       string
	FromEmail      string
	DefaultSubject string

	SendToken     string
	PanelPassword string

	BatchSize    int
	DelayMs      int
	BatchDelayMs int
	SendTimeout  time.Duration
	EscapeName   bool
	MaxBodyBytes int64

	RateLimitRPS   int
	RateLimitBurst int

	SQSQueueURL         string
	AWSEndpointOverride string
	DatabaseURL         string

	CORS CORSConfig
}

// SecretSource resolves optional secrets. *awsclient.SecretsManagerClient satisfies it.
type SecretSource interface {
	LookupSecret(ctx context.Context, name string) string
}

// Load reads the environment into a Config. Secrets go through secrets so
// that NAME_ARN variables are honoured; a nil source reads plain variables.
func Load(ctx context.Context, secrets SecretSource) (*Config, error) {
	if secrets == nil {
		secrets = (*awsclient.SecretsManagerClient)(nil)
	}

	cfg := &Config{
		Stage:               helpers.StageOrDefault(),
		LogLevel:            helpers.EnvString("LOG_LEVEL", "info"),
		Port:                helpers.EnvString("PORT", DefaultPort),
		MailProvider:        strings.ToLower(helpers.EnvString("MAIL_PROVIDER", ProviderSMTP)),
		FromName:            helpers.EnvString("FROM_NAME", DefaultFromName),
		FromEmail:           helpers.EnvString("FROM_EMAIL", ""),
		DefaultSubject:      helpers.EnvString("SUBJECT", DefaultSubject),
		SQSQueueURL:         helpers.EnvString("SQS_QUEUE_URL", ""),
		AWSEndpointOverride: helpers.EnvString("AWS_ENDPOINT_OVERRIDE", ""),
	}

	cfg.SMTP = SMTPConfig{
		Host: helpers.EnvString("SMTP_HOST", ""),
		User: helpers.EnvString("SMTP_USER", ""),
		Pass: secrets.LookupSecret(ctx, "SMTP_PASS"),
	}
	cfg.Graph = GraphConfig{
		TenantID:     helpers.EnvString("GRAPH_TENANT_ID", ""),
		ClientID:     helpers.EnvString("GRAPH_CLIENT_ID", ""),
		ClientSecret: secrets.LookupSecret(ctx, "GRAPH_CLIENT_SECRET"),
		Sender:       helpers.EnvString("GRAPH_SENDER", ""),
		AuthorityURL: strings.TrimRight(helpers.EnvString("GRAPH_AUTHORITY_URL", DefaultGraphAuthorityURL), "/"),
		BaseURL:      strings.TrimRight(helpers.EnvString("GRAPH_BASE_URL", DefaultGraphBaseURL), "/"),
	}
	cfg.ResendAPIKey = secrets.LookupSecret(ctx, "RESEND_API_KEY")
	cfg.SendToken = secrets.LookupSecret(ctx, "SEND_TOKEN")
	cfg.PanelPassword = secrets.LookupSecret(ctx, "PANEL_PASSWORD")
	cfg.DatabaseURL = secrets.LookupSecret(ctx, "DATABASE_URL")
	if js, ok := secrets.(JSONSecretSource); ok {
		dsn, used, err := rdsDSN(ctx, js)
		if err != nil {
			return nil, err
		}
		if used {
			cfg.DatabaseURL = dsn
		}
	}

	var err error
	if cfg.SMTP.Port, err = helpers.EnvInt("SMTP_PORT", DefaultSMTPPort); err != nil {
		return nil, errors.Wrap(err, "SMTP_PORT")
	}
	if cfg.SMTP.InsecureSkipVerify, err = helpers.EnvBool("SMTP_INSECURE_SKIP_VERIFY", false); err != nil {
		return nil, errors.Wrap(err, "SMTP_INSECURE_SKIP_VERIFY")
	}
	if cfg.BatchSize, err = helpers.EnvInt("BATCH_SIZE", DefaultBatchSize); err != nil {
		return nil, errors.Wrap(err, "BATCH_SIZE")
	}
	if cfg.DelayMs, err = helpers.EnvInt("DELAY_MS", DefaultDelayMs); err != nil {
		return nil, errors.Wrap(err, "DELAY_MS")
	}
	if cfg.BatchDelayMs, err = helpers.EnvInt("BATCH_DELAY_MS", DefaultBatchDelayMs); err != nil {
		return nil, errors.Wrap(err, "BATCH_DELAY_MS")
	}
	if cfg.SendTimeout, err = helpers.EnvDuration("MAIL_SEND_TIMEOUT", DefaultSendTimeout); err != nil {
		return nil, errors.Wrap(err, "MAIL_SEND_TIMEOUT")
	}
	if cfg.EscapeName, err = helpers.EnvBool("TEMPLATE_ESCAPE_NAME", true); err != nil {
		return nil, errors.Wrap(err, "TEMPLATE_ESCAPE_NAME")
	}
	maxBody, err := helpers.EnvInt("MAX_BODY_BYTES", DefaultMaxBodyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "MAX_BODY_BYTES")
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.RateLimitRPS, err = helpers.EnvInt("SEND_RATE_LIMIT_RPS", DefaultRateLimitRPS); err != nil {
		return nil, errors.Wrap(err, "SEND_RATE_LIMIT_RPS")
	}
	if cfg.RateLimitBurst, err = helpers.EnvInt("SEND_RATE_LIMIT_BURST", DefaultRateLimitBurst); err != nil {
		return nil, errors.Wrap(err, "SEND_RATE_LIMIT_BURST")
	}

	cfg.CORS = loadCORS()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCORS() CORSConfig {
	c := CORSConfig{
		AllowedOrigins:   helpers.SplitCSV(helpers.EnvString("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		AllowedMethods:   helpers.SplitCSV(helpers.EnvString("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
		AllowedHeaders:   helpers.SplitCSV(helpers.EnvString("CORS_ALLOWED_HEADERS", "Origin,Content-Type,Accept,Authorization,X-Panel-Password,X-Correlation-ID")),
		ExposedHeaders:   helpers.SplitCSV(helpers.EnvString("CORS_EXPOSED_HEADERS", "X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After,X-Correlation-ID")),
		AllowCredentials: helpers.EnvString("CORS_ALLOW_CREDENTIALS", "") == "true",
	}
	return c
}

// Validate rejects values that can never work. Missing provider credentials
// are not checked here; the transport factory reports those per provider.
func (c *Config) Validate() error {
	switch c.MailProvider {
	case ProviderSMTP, ProviderGraph, ProviderResend:
	default:
		return fmt.Errorf("MAIL_PROVIDER %q is not one of smtp, graph, resend", c.MailProvider)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.DelayMs < 0 || c.BatchDelayMs < 0 {
		return errors.New("DELAY_MS and BATCH_DELAY_MS must not be negative")
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("MAIL_SEND_TIMEOUT must be positive, got %s", c.SendTimeout)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	if c.RateLimitRPS < 1 || c.RateLimitBurst < 1 {
		return errors.New("SEND_RATE_LIMIT_RPS and SEND_RATE_LIMIT_BURST must be positive")
	}
	for _, raw := range []string{c.Graph.AuthorityURL, c.Graph.BaseURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return errors.Wrapf(err, "invalid Graph endpoint %q", raw)
		}
	}
	return nil
}

// SenderEmail is FROM_EMAIL, else the Graph sender or SMTP user depending on provider.
func (c *Config) SenderEmail() string {
	if c.FromEmail != "" {
		return c.FromEmail
	}
	switch c.MailProvider {
	case ProviderGraph:
		return c.Graph.Sender
	default:
		return c.SMTP.User
	}
}

// AsyncEnabled reports whether batches can be handed to the send worker.
func (c *Config) AsyncEnabled() bool {
	return c.SQSQueueURL != ""
}

// SendLogEnabled reports whether a Postgres send log is configured.
func (c *Config) SendLogEnabled() bool {
	return c.DatabaseURL != ""
}
