package sender

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type Config struct {
	TestMode bool

	SMSProvider     string
	SMSWebhookURL   string
	SMSWebhookToken string
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string

	EmailProvider  string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	EmailFrom      string
	EmailFromName  string
	SendGridAPIKey string

	AWSRegion string
}

// New builds the SMS and email senders named by cfg. TestMode overrides both
// providers.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (SMSSender, EmailSender, error) {
	if cfg.TestMode {
		t := NewTestSender(logger)
		return t, t, nil
	}
	sms, err := newSMS(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	email, err := newEmail(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return sms, email, nil
}

func newSMS(ctx context.Context, cfg Config, logger *slog.Logger) (SMSSender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SMSProvider)) {
	case "", "noop":
		return NewTestSender(logger), nil
	case "webhook":
		return NewWebhookSMSSender(cfg.SMSWebhookURL, cfg.SMSWebhookToken), nil
	case "twilio":
		return NewTwilioSender(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom), nil
	case "sns":
		return NewSNSSender(ctx, cfg.AWSRegion)
	default:
		return nil, fmt.Errorf("unknown SMS_PROVIDER %q", cfg.SMSProvider)
	}
}

func newEmail(ctx context.Context, cfg Config, logger *slog.Logger) (EmailSender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "", "noop":
		return NewTestSender(logger), nil
	case "smtp":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom, cfg.SMTPUsername, cfg.SMTPPassword), nil
	case "ses":
		return NewSESSender(ctx, cfg.AWSRegion, cfg.EmailFrom)
	case "sendgrid":
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}
