// Package graph sends mail through the Microsoft Graph sendMail endpoint
// using application (client-credentials) permissions.
package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	httpclient "github.com/n42group/mailmerge/internal/client/http"
)

// EmailAddress is a Graph emailAddress resource.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Recipient wraps an EmailAddress the way Graph expects.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a message body.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Header is an internet message header. Graph only accepts names starting with "X-".
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is the subset of the Graph message resource used for sending.
type Message struct {
	Subject                string      `json:"subject"`
	Body                   ItemBody    `json:"body"`
	From                   *Recipient  `json:"from,omitempty"`
	ToRecipients           []Recipient `json:"toRecipients"`
	InternetMessageHeaders []Header    `json:"internetMessageHeaders,omitempty"`
}

// SendMailRequest is the body of POST /users/{id}/sendMail.
type SendMailRequest struct {
	Message         Message `json:"message"`
	SaveToSentItems bool    `json:"saveToSentItems"`
}

// Client calls Graph with bearer tokens from a TokenSource.
type Client struct {
	http   *httpclient.HTTPClient
	tokens TokenSource
}

// NewClient returns a Client rooted at baseURL (https://graph.microsoft.com in production).
func NewClient(baseURL string, tokens TokenSource, opts ...httpclient.ClientOption) *Client {
	// No retries: a throttling or gateway status does not prove Graph
	// rejected the message, and a second POST can deliver it twice.
	options := append([]httpclient.ClientOption{
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRetryConfig(nil),
	}, opts...)
	return &Client{
		http:   httpclient.NewHTTPClient(options...),
		tokens: tokens,
	}
}

// Tokens exposes the token source, used to verify credentials before a send loop.
func (c *Client) Tokens() TokenSource {
	return c.tokens
}

// SendMail sends msg as sender. Graph answers 202 with an empty body.
func (c *Client) SendMail(ctx context.Context, sender string, msg Message) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/v1.0/users/%s/sendMail", url.PathEscape(sender))
	resp, err := c.http.Post(ctx, path, SendMailRequest{Message: msg}, httpclient.WithBearerToken(token))
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		return fmt.Errorf("graph sendMail: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("graph sendMail: unexpected status %d", resp.StatusCode)
	}
	return nil
}
