// Package mail defines the transport abstraction used by the send loop and
// its SMTP, Microsoft Graph and Resend implementations.
package mail

//go:generate mockgen -source=mail.go -destination=mocks/mock_mail.go -package=mocks

import (
	"context"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/google/uuid"
)

// HeaderEntityRefID carries a per-message UUID. Gmail uses it to avoid
// threading unrelated bulk messages together.
const HeaderEntityRefID = "X-Entity-Ref-ID"

// Address is a display name plus email address.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String formats the address for a From/To header.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return (&netmail.Address{Name: a.Name, Address: a.Email}).String()
}

// Message is one fully rendered email.
type Message struct {
	From    Address
	To      Address
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
}

// NewMessage builds a message with a fresh X-Entity-Ref-ID header.
func NewMessage(from, to Address, subject, html, text string) *Message {
	return &Message{
		From:    from,
		To:      to,
		Subject: subject,
		HTML:    html,
		Text:    text,
		Headers: map[string]string{HeaderEntityRefID: uuid.New().String()},
	}
}

// RefID returns the X-Entity-Ref-ID header, or "" if absent.
func (m *Message) RefID() string {
	return m.Headers[HeaderEntityRefID]
}

// Transport opens sessions against one mail provider.
type Transport interface {
	// Name identifies the provider in logs and the send log.
	Name() string
	// Open verifies credentials or connectivity before the first message.
	Open(ctx context.Context) (Session, error)
}

// Session sends messages one at a time. Implementations need not be safe
// for concurrent use.
type Session interface {
	// Send delivers msg and returns the provider's message identifier.
	Send(ctx context.Context, msg *Message) (string, error)
	Close() error
}

// ConfigError lists the environment variables a provider needs but lacks.
type ConfigError struct {
	Provider string
	Missing  []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s transport is missing configuration: %s", e.Provider, strings.Join(e.Missing, ", "))
}

// missing returns the names whose paired value is empty.
func missing(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			out = append(out, pairs[i])
		}
	}
	return out
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}
