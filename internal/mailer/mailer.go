// Package mailer delivers account emails. SMTP delivery and a log-only
// implementation for local development share the same interface.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// SMTPConfig carries the relay settings. From doubles as the auth identity.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

// SMTP sends codes through a plain-auth SMTP relay.
type SMTP struct {
	cfg SMTPConfig
	log *slog.Logger
}

func NewSMTP(cfg SMTPConfig, log *slog.Logger) *SMTP {
	if log == nil {
		log = slog.Default()
	}
	return &SMTP{cfg: cfg, log: log}
}

func (m *SMTP) SendVerificationCode(ctx context.Context, email, code string) error {
	return m.send(ctx, email, "Verify your email",
		fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code))
}

func (m *SMTP) SendPasswordResetCode(ctx context.Context, email, code string) error {
	return m.send(ctx, email, "Reset your password",
		fmt.Sprintf("Your password reset code is %s. It expires in 15 minutes.", code))
}

func (m *SMTP) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	m.log.Info("mail sent", "to", to, "subject", subject)
	return nil
}

// LogOnly writes codes to the log instead of sending mail. Used when no SMTP
// relay is configured.
type LogOnly struct {
	log *slog.Logger
}

func NewLogOnly(log *slog.Logger) *LogOnly {
	if log == nil {
		log = slog.Default()
	}
	return &LogOnly{log: log}
}

func (m *LogOnly) SendVerificationCode(_ context.Context, email, code string) error {
	m.log.Info("verification code issued", "email", email, "code", code)
	return nil
}

func (m *LogOnly) SendPasswordResetCode(_ context.Context, email, code string) error {
	m.log.Info("password reset code issued", "email", email, "code", code)
	return nil
}
