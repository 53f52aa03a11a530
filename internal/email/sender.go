// Package email renders and delivers the verification and password reset
// links over SMTP.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// Kind selects the message template.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type layout struct {
	subject  string
	template string
	path     string
}

var layouts = map[Kind]layout{
	KindVerification:  {subject: "Verify your email address", template: "verification.html", path: "/verify-email"},
	KindPasswordReset: {subject: "Reset your password", template: "password_reset.html", path: "/reset-password"},
}

// Dialer is the part of *gomail.Dialer the sender uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config holds sender settings.  TTLs only appear in the message text.
type Config struct {
	From            string
	LinkBaseURL     string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Sender delivers single-use token links by SMTP.
type Sender struct {
	dialer Dialer
	cfg    Config
}

// NewSender returns a sender using an SMTP dialer for host:port.
func NewSender(host string, port int, username, password string, cfg Config) *Sender {
	return NewSenderWithDialer(gomail.NewDialer(host, port, username, password), cfg)
}

// NewSenderWithDialer returns a sender using d.
func NewSenderWithDialer(d Dialer, cfg Config) *Sender {
	cfg.LinkBaseURL = strings.TrimRight(cfg.LinkBaseURL, "/")
	return &Sender{dialer: d, cfg: cfg}
}

// Link builds the URL that redeems token for kind.
func (s *Sender) Link(kind Kind, token string) string {
	return s.cfg.LinkBaseURL + layouts[kind].path + "?token=" + url.QueryEscape(token)
}

// Render returns the subject and HTML body for kind.
func (s *Sender) Render(kind Kind, token string) (string, string, error) {
	l, ok := layouts[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email kind %q", kind)
	}
	ttl := s.cfg.VerificationTTL
	if kind == KindPasswordReset {
		ttl = s.cfg.ResetTTL
	}
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, l.template, map[string]string{
		"Link": s.Link(kind, token),
		"TTL":  ttl.String(),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to execute template %s: %w", l.template, err)
	}
	return l.subject, buf.String(), nil
}

// Send renders and delivers one message.  gomail has no context support, so
// the dial runs in its own goroutine and ctx only bounds the wait.
func (s *Sender) Send(ctx context.Context, kind Kind, to, token string) error {
	subject, body, err := s.Render(kind, token)
	if err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send %s email: %w", kind, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send %s email: %w", kind, ctx.Err())
	}
}

// SendVerificationLink mails the email verification link.
func (s *Sender) SendVerificationLink(ctx context.Context, to, token string) error {
	return s.Send(ctx, KindVerification, to, token)
}

// SendResetLink mails the password reset link.
func (s *Sender) SendResetLink(ctx context.Context, to, token string) error {
	return s.Send(ctx, KindPasswordReset, to, token)
}
