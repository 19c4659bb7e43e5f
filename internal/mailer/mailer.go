// Package mailer delivers verification and password reset emails over
// SMTP. The auth service treats delivery as fire-and-forget; errors
// returned here are logged by the caller, never acted on.
package mailer

import (
	"context"
	"fmt"
	"net/url"

	"github.com/wneessen/go-mail"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	client *mail.Client
	from   string
}

func New(cfg Config) (*Mailer, error) {
	const op = "mailer.New"

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Mailer{client: client, from: cfg.From}, nil
}

// SendVerificationCode emails the six digit email verification code.
func (m *Mailer) SendVerificationCode(ctx context.Context, email, code string) error {
	const op = "mailer.SendVerificationCode"

	body := fmt.Sprintf(
		"Your verification code is %s.\n\nIt expires in 10 minutes. If you did not create an account, ignore this email.\n",
		code,
	)

	if err := m.send(ctx, email, "Verify your email", body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SendPasswordReset emails a reset link built from the caller-supplied
// callback URL and the raw reset token.
func (m *Mailer) SendPasswordReset(ctx context.Context, email, rawToken, callbackURL string) error {
	const op = "mailer.SendPasswordReset"

	link := fmt.Sprintf("%s?token=%s&email=%s",
		callbackURL, url.QueryEscape(rawToken), url.QueryEscape(email))
	body := fmt.Sprintf(
		"A password reset was requested for this address.\n\nReset your password: %s\n\nThe link expires in 10 minutes. If you did not request this, ignore this email.\n",
		link,
	)

	if err := m.send(ctx, email, "Reset your password", body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return m.client.DialAndSendWithContext(ctx, msg)
}
