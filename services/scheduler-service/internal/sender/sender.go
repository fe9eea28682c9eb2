// Package sender delivers rendered messages over SMS and email providers.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SMSSender sends one SMS and returns the provider message id.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// EmailSender sends one HTML email and returns the provider message id.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html string) (string, error)
}

// TestSender accepts every message without contacting a provider.
type TestSender struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewTestSender(logger *slog.Logger) *TestSender {
	return &TestSender{logger: logger, now: time.Now}
}

func (s *TestSender) id() string {
	return fmt.Sprintf("test_%d", s.now().UnixNano())
}

func (s *TestSender) SendSMS(_ context.Context, to, body string) (string, error) {
	id := s.id()
	if s.logger != nil {
		s.logger.Info("test sms accepted", "to", to, "chars", len(body), "provider_message_id", id)
	}
	return id, nil
}

func (s *TestSender) SendEmail(_ context.Context, to, subject, _ string) (string, error) {
	id := s.id()
	if s.logger != nil {
		s.logger.Info("test email accepted", "to", to, "subject", subject, "provider_message_id", id)
	}
	return id, nil
}
