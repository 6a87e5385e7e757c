package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Message is one outbound text for one recipient.
type Message struct {
	To   string
	Text string
}

// Channel delivers rendered messages.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

type webhookPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WebhookChannel posts messages to a WhatsApp gateway endpoint.
type WebhookChannel struct {
	url    string
	token  string
	client *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) WebhookOption {
	return func(ch *WebhookChannel) {
		ch.token = token
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the message as a text payload.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	if msg.To == "" {
		return errors.New("webhook channel: empty recipient")
	}
	body, err := json.Marshal(webhookPayload{Phone: msg.To, Message: msg.Text, Type: "text"})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
