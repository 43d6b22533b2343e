package mail

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/n42group/mailmerge/internal/config"
	"github.com/n42group/mailmerge/internal/logger"
)

// Dialer opens an authenticated SMTP connection. *gomail.Dialer satisfies it.
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

// SMTPTransport sends through an SMTP relay with STARTTLS (or implicit TLS on 465).
type SMTPTransport struct {
	dialer Dialer
	host   string
}

// NewSMTPTransport builds a transport for cfg. TLS 1.2 is the minimum version.
func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test relays
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("SMTP TLS certificate verification disabled", zap.String("host", cfg.Host))
	}
	return &SMTPTransport{dialer: d, host: cfg.Host}
}

// NewSMTPTransportWithDialer wraps an existing dialer.
func NewSMTPTransportWithDialer(d Dialer, host string) *SMTPTransport {
	return &SMTPTransport{dialer: d, host: host}
}

func (t *SMTPTransport) Name() string { return config.ProviderSMTP }

// Open dials the relay so bad credentials fail before any recipient is tried.
func (t *SMTPTransport) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := t.dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", t.host, err)
	}
	return &smtpSession{transport: t, conn: conn}, nil
}

type smtpSession struct {
	transport *SMTPTransport
	conn      gomail.SendCloser
}

// Send writes msg on the open connection. A failed send drops the
// connection and the next Send dials again.
func (s *smtpSession) Send(ctx context.Context, msg *Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.conn == nil {
		conn, err := s.transport.dialer.Dial()
		if err != nil {
			return "", fmt.Errorf("smtp redial %s: %w", s.transport.host, err)
		}
		s.conn = conn
	}

	m, id := buildGomailMessage(msg)
	conn := s.conn
	done := make(chan error, 1)
	go func() { done <- gomail.Send(conn, m) }()

	select {
	case err := <-done:
		if err != nil {
			_ = conn.Close()
			s.conn = nil
			return "", fmt.Errorf("smtp send to %s: %w", msg.To.Email, err)
		}
		return id, nil
	case <-ctx.Done():
		s.conn = nil
		go func() {
			<-done
			_ = conn.Close()
		}()
		return "", ctx.Err()
	}
}

func (s *smtpSession) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func buildGomailMessage(msg *Message) (*gomail.Message, string) {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From.Email, msg.From.Name)
	m.SetAddressHeader("To", msg.To.Email, msg.To.Name)
	m.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	ref := msg.RefID()
	if ref == "" {
		ref = uuid.New().String()
	}
	id := fmt.Sprintf("<%s@%s>", ref, domainOf(msg.From.Email))
	m.SetHeader("Message-ID", id)

	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else {
		m.SetBody("text/html", msg.HTML)
	}
	return m, id
}
