package sender

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPSender sends HTML email through an SMTP relay. Auth is optional so
// Mailpit-style dev relays work unauthenticated.
type SMTPSender struct {
	addr     string
	host     string
	from     string
	username string
	password string
}

func NewSMTPSender(host, port, from, username, password string) *SMTPSender {
	host = strings.TrimSpace(host)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@apptflow.local"
	}
	return &SMTPSender{
		addr:     net.JoinHostPort(host, strings.TrimSpace(port)),
		host:     host,
		from:     from,
		username: username,
		password: password,
	}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, html string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.from))
	msg := buildMessage(s.from, to, subject, html, id, time.Now())

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	if err := smtp.SendMail(s.addr, auth, s.from, []string{to}, []byte(msg)); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return id, nil
}

func buildMessage(from, to, subject, html, messageID string, now time.Time) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMessage-ID: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		mime.QEncoding.Encode("utf-8", subject),
		now.UTC().Format(time.RFC1123Z),
		messageID,
		html,
	)
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.Trim(addr[i+1:], "> ")
	}
	return "localhost"
}
