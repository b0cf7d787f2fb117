package mailer

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/config"
	"marketplace/internal/models"

	"gopkg.in/gomail.v2"
)

var ErrUnknownPurpose = errors.New("unknown mail purpose")

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	dialer Dialer
	from   string
}

func New(cfg config.SMTP) *Mailer {
	return NewWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewWithDialer(d Dialer, from string) *Mailer {
	return &Mailer{dialer: d, from: from}
}

// Send renders msg and delivers it over SMTP.
func (m *Mailer) Send(_ context.Context, msg models.Message) error {
	const op = "mailer.Send"

	subject, body, err := Render(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.Email)
	gm.SetHeader("Subject", subject)
	gm.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func Render(msg models.Message) (subject, body string, err error) {
	switch msg.Purpose {
	case models.PurposeEmailVerification:
		return "Verify your email",
			"Welcome to the marketplace!\n\nConfirm your email address by opening this link:\n" + msg.Link + "\n",
			nil
	case models.PurposePasswordReset:
		return "Reset your password",
			"We received a request to reset your password.\n\nOpen this link to choose a new one:\n" + msg.Link +
				"\n\nIf you did not ask for this, ignore this email.\n",
			nil
	case models.PurposePasswordUpdated:
		return "Your password was changed",
			"Your password has been updated and every session was signed out.\n" +
				"Sign in again with the new password.\n",
			nil
	}

	return "", "", fmt.Errorf("%w: %q", ErrUnknownPurpose, msg.Purpose)
}
