package mail

import (
	"context"
	"strings"

	"github.com/n42group/mailmerge/internal/client/graph"
	"github.com/n42group/mailmerge/internal/config"
)

// GraphTransport sends as a mailbox through Microsoft Graph.
type GraphTransport struct {
	client *graph.Client
	sender string
}

// NewGraphTransport sends every message as sender (a UPN or user ID).
func NewGraphTransport(client *graph.Client, sender string) *GraphTransport {
	return &GraphTransport{client: client, sender: sender}
}

func (t *GraphTransport) Name() string { return config.ProviderGraph }

// Open acquires an access token so credential problems surface up front.
func (t *GraphTransport) Open(ctx context.Context) (Session, error) {
	if _, err := t.client.Tokens().AccessToken(ctx); err != nil {
		return nil, err
	}
	return &graphSession{t: t}, nil
}

type graphSession struct {
	t *GraphTransport
}

// Send returns the X-Entity-Ref-ID as the message ID; sendMail returns none.
func (s *graphSession) Send(ctx context.Context, msg *Message) (string, error) {
	if err := s.t.client.SendMail(ctx, s.t.sender, toGraphMessage(msg)); err != nil {
		return "", err
	}
	return msg.RefID(), nil
}

func (s *graphSession) Close() error { return nil }

func toGraphMessage(msg *Message) graph.Message {
	body := graph.ItemBody{ContentType: "HTML", Content: msg.HTML}
	if msg.HTML == "" {
		body = graph.ItemBody{ContentType: "Text", Content: msg.Text}
	}

	out := graph.Message{
		Subject:      msg.Subject,
		Body:         body,
		ToRecipients: []graph.Recipient{{EmailAddress: graph.EmailAddress{Address: msg.To.Email, Name: msg.To.Name}}},
	}
	if msg.From.Email != "" {
		out.From = &graph.Recipient{EmailAddress: graph.EmailAddress{Address: msg.From.Email, Name: msg.From.Name}}
	}
	for k, v := range msg.Headers {
		if strings.HasPrefix(strings.ToLower(k), "x-") {
			out.InternetMessageHeaders = append(out.InternetMessageHeaders, graph.Header{Name: k, Value: v})
		}
	}
	return out
}
