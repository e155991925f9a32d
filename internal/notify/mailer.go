// Package notify delivers account notifications by email. Notifications
// are queued by the Dispatcher and sent by background workers through a
// Mailer.
package notify

import (
	"context"
	"log/slog"
)

// Email is a rendered message ready to send.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes emails to the log instead of sending them. Used when no
// mail transport is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs the email.
func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.logger.InfoContext(ctx, "email not sent, no mail transport configured",
		"to", email.To,
		"subject", email.Subject,
		"body", email.Text,
	)
	return nil
}
