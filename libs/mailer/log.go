package mailer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogProvider writes messages to the logger. It stands in for a real provider
// when no API key is configured, so receipts still show up in development.
type LogProvider struct {
	Logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{Logger: logger}
}

func (l *LogProvider) Name() string { return "log" }

// Send records the message at info level and its text body at debug level.
// The returned id is prefixed with "log-" so it never collides with a
// provider id.
func (l *LogProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	id := "log-" + uuid.NewString()
	attrs := []any{
		slog.String("message_id", id),
		slog.String("from", msg.From),
		slog.Any("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("html_bytes", len(msg.HTML)),
		slog.Int("text_bytes", len(msg.Text)),
	}
	if msg.ReplyTo != "" {
		attrs = append(attrs, slog.String("reply_to", msg.ReplyTo))
	}
	if kind, ok := msg.Tags["kind"]; ok {
		attrs = append(attrs, slog.String("kind", kind))
	}
	l.Logger.InfoContext(ctx, "mailer: message not sent, log provider active", attrs...)
	if msg.Text != "" {
		l.Logger.DebugContext(ctx, "mailer: message text", slog.String("message_id", id), slog.String("text", msg.Text))
	}
	return SendResult{ProviderMessageID: id}, nil
}
