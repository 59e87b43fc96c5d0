package mailer

import (
	"context"
	"errors"
	"strings"
)

// ErrNoRecipients is returned when a message has no usable recipient.
var ErrNoRecipients = errors.New("mailer: message has no recipients")

// Message represents an email to send.
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	// Tags label the message at the provider, e.g. {"kind": "complaint_receipt"}.
	Tags map[string]string
}

// SendResult contains the response from the provider.
type SendResult struct {
	ProviderMessageID string
}

// Provider sends emails via a specific backend.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// Mailer is the top-level entry point for sending emails.
type Mailer struct {
	provider    Provider
	fromAddress string
	replyTo     string
}

// New creates a new Mailer with the given provider and default sender address.
func New(provider Provider, fromAddress string) *Mailer {
	return &Mailer{
		provider:    provider,
		fromAddress: fromAddress,
	}
}

// WithReplyTo sets the default reply-to address and returns the mailer.
func (m *Mailer) WithReplyTo(address string) *Mailer {
	m.replyTo = strings.TrimSpace(address)
	return m
}

// Send sends an email message via the configured provider.
// Empty From and ReplyTo fall back to the mailer defaults and blank
// recipients are dropped.
func (m *Mailer) Send(ctx context.Context, msg Message) (SendResult, error) {
	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		if trimmed := strings.TrimSpace(to); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	if len(recipients) == 0 {
		return SendResult{}, ErrNoRecipients
	}
	msg.To = recipients
	if msg.From == "" {
		msg.From = m.fromAddress
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = m.replyTo
	}
	return m.provider.Send(ctx, msg)
}

// ProviderName returns the name of the configured provider.
func (m *Mailer) ProviderName() string {
	return m.provider.Name()
}
