// Package mailer sends transactional email over SMTP. It exists for the
// password-reset flow and deliberately stays small: one message type,
// HTML body, no queueing.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"
)

// SMTP sends mail through a single SMTP relay with PLAIN auth.
type SMTP struct {
	host string
	port string
	user string
	pass string
	from string
}

// NewSMTPFromEnv builds a sender from EVENTGUARD_SMTP_* variables.
// Returns nil when no host is configured so callers can run without
// outbound mail.
func NewSMTPFromEnv() *SMTP {
	host := os.Getenv("EVENTGUARD_SMTP_HOST")
	if host == "" {
		return nil
	}
	port := os.Getenv("EVENTGUARD_SMTP_PORT")
	if port == "" {
		port = "587"
	}
	user := os.Getenv("EVENTGUARD_SMTP_USER")
	from := os.Getenv("EVENTGUARD_SMTP_FROM")
	if from == "" {
		from = user
	}
	return &SMTP{
		host: host,
		port: port,
		user: user,
		pass: os.Getenv("EVENTGUARD_SMTP_PASS"),
		from: from,
	}
}

// Send delivers one HTML message. The context is consulted before the
// dial since net/smtp has no context support of its own.
func (m *SMTP) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}
