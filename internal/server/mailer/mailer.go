// Package mailer builds the account emails the auth flows send and hands
// them to a delivery backend.
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/wadai/internal/logging"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages. Delivery transports live outside this module.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer composes verification and reset emails.
type Mailer struct {
	sender  Sender
	baseURL string
}

func New(sender Sender, publicBaseURL string) *Mailer {
	return &Mailer{sender: sender, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// VerificationLink is the frontend URL that consumes an email
// verification secret.
func (m *Mailer) VerificationLink(secret string) string {
	return m.baseURL + "/verify-email/" + url.PathEscape(secret)
}

// ResetLink is the frontend URL that consumes a password reset secret.
func (m *Mailer) ResetLink(secret string) string {
	return m.baseURL + "/reset-password/" + url.PathEscape(secret)
}

func (m *Mailer) SendVerification(ctx context.Context, to, username, secret string) error {
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Verify your email address",
		Body: fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening the link below:\n\n%s\n\nThe link expires in 24 hours.\n",
			username, m.VerificationLink(secret)),
	})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, username, secret string) error {
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Hi %s,\n\nSomeone asked to reset the password of your account. Open the link below to choose a new one:\n\n%s\n\nIf it was not you, ignore this email.\n",
			username, m.ResetLink(secret)),
	})
}

// LogSender writes messages to the log instead of delivering them. It is the
// development backend.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "mailer")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info(ctx, "email", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
