package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrUndeliverable marks a destination the sender can never reach; it is not
// retried.
var ErrUndeliverable = errors.New("undeliverable destination")

// LogSender writes codes to the log instead of delivering them. It stands in
// for the mail/SMS gateway in development.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, code, destination string) error {
	if strings.TrimSpace(destination) == "" {
		return ErrUndeliverable
	}
	s.log.Info("verification code", "destination", destination, "code", code)
	return nil
}
