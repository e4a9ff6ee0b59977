// Package mailer delivers rendered emails.
package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Email is a plain-text message.
type Email struct {
	From    string
	To      []string
	Subject string
	Text    string
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

var _ Sender = (*LogSender)(nil)

// LogSender writes emails to the log instead of delivering them.
type LogSender struct {
	lg *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(lg *zap.Logger) *LogSender {
	return &LogSender{lg: lg}
}

func (s *LogSender) Send(_ context.Context, e Email) error {
	s.lg.Info("Email",
		zap.String("from", e.From),
		zap.Strings("to", e.To),
		zap.String("subject", e.Subject),
		zap.String("text", e.Text),
	)
	return nil
}
