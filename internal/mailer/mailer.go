// Package mailer delivers transactional email such as account verification
// links.
package mailer

import (
	"context"
	"fmt"
	"html"
	"net/url"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/Em-Vi/MediScan/internal/config"
)

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTP sends through an SMTP relay using gomail.
type SMTP struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTP returns a sender for the given relay.
func NewSMTP(host string, port int, username, password, from string) *SMTP {
	return &SMTP{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

func (s *SMTP) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}

// Log writes messages to a logger instead of sending them. It is used when
// no SMTP relay is configured so verification links remain reachable in
// development.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Send(_ context.Context, to, subject, htmlBody string) error {
	l.Logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", htmlBody).
		Msg("email not sent (no SMTP relay configured)")
	return nil
}

// New picks SMTP when a host is configured, otherwise Log.
func New(cfg config.MailConfig, logger zerolog.Logger) Sender {
	if cfg.Host == "" {
		return Log{Logger: logger}
	}
	return NewSMTP(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.From)
}

// VerificationURL is the link a user follows to confirm their address.
func VerificationURL(frontendURL, token string) string {
	return frontendURL + "/verify-email/confirm?token=" + url.QueryEscape(token)
}

// VerificationEmail renders the subject and body of the verification message.
func VerificationEmail(frontendURL, username, token string) (subject, body string) {
	link := html.EscapeString(VerificationURL(frontendURL, token))
	name := html.EscapeString(username)
	body = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
	<h2>Welcome to MediScan, %s!</h2>
	<p>Please confirm your email address to finish setting up your account.</p>
	<p><a href="%s" style="background-color: #007BFF; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block;">Verify email</a></p>
	<p>Or copy this link:</p>
	<p>%s</p>
	<p>If you didn't create an account, please ignore this email.</p>
</div>`, name, link, link)
	return "Verify your Email", body
}
