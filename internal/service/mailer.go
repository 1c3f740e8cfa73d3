package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer delivers the password-reset emails.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes messages to the log instead of sending them. It is the
// default so local development needs no mail server.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.InfoContext(ctx, "email (not sent)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}

// SMTPConfig is the outgoing mail server. Username empty means no AUTH.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var a smtp.Auth
	if m.cfg.Username != "" {
		a = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, a, m.cfg.From, []string{to}, buildMessage(m.cfg.From, to, subject, body)); err != nil {
		m.logger.ErrorContext(ctx, "sending email failed",
			slog.String("smtp_addr", addr),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/mailer: sending to %s: %w", to, err)
	}

	m.logger.InfoContext(ctx, "email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
