package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/n42group/mailmerge/internal/config"
)

// ResendEmails is the part of the Resend SDK used for sending.
type ResendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendTransport sends through the Resend HTTP API.
type ResendTransport struct {
	emails ResendEmails
	apiKey string
}

// NewResendTransport creates a transport with a Resend client for apiKey.
func NewResendTransport(apiKey string) *ResendTransport {
	return &ResendTransport{emails: resend.NewClient(apiKey).Emails, apiKey: apiKey}
}

// NewResendTransportWithEmails wraps an existing Emails service.
func NewResendTransportWithEmails(emails ResendEmails, apiKey string) *ResendTransport {
	return &ResendTransport{emails: emails, apiKey: apiKey}
}

func (t *ResendTransport) Name() string { return config.ProviderResend }

func (t *ResendTransport) Open(ctx context.Context) (Session, error) {
	if t.apiKey == "" {
		return nil, errors.New("resend api key is empty")
	}
	return t, ctx.Err()
}

// Send maps msg onto a Resend request and returns the Resend email ID.
func (t *ResendTransport) Send(ctx context.Context, msg *Message) (string, error) {
	sent, err := t.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From.String(),
		To:      []string{msg.To.Email},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Headers: msg.Headers,
		Tags: []resend.Tag{
			{Name: "category", Value: "mailmerge"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("resend send to %s: %w", msg.To.Email, err)
	}
	return sent.Id, nil
}

func (t *ResendTransport) Close() error { return nil }
