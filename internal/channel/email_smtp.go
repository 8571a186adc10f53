package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig configures the SMTP adapter.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPEmail sends templated mail through an SMTP relay.
type SMTPEmail struct {
	addr      string
	auth      smtp.Auth
	from      string
	templates *TemplateSet
	send      SendMailFunc
}

// NewSMTPEmail creates the adapter. send may be nil to use smtp.SendMail.
func NewSMTPEmail(cfg SMTPConfig, templates *TemplateSet, send SendMailFunc) *SMTPEmail {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPEmail{
		addr:      net.JoinHostPort(cfg.Host, cfg.Port),
		auth:      auth,
		from:      cfg.From,
		templates: templates,
		send:      send,
	}
}

func (e *SMTPEmail) Send(ctx context.Context, address, templateID string, vars map[string]any) error {
	to, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", address, ErrPermanent)
	}
	subject, body, err := e.templates.Render(templateID, vars)
	if err != nil {
		return err
	}
	msg := buildMessage(e.from, to.Address, subject, body)

	done := make(chan error, 1)
	go func() {
		done <- e.send(e.addr, e.auth, e.from, []string{to.Address}, msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	case err := <-done:
		return classifySMTPError(err)
	}
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// classifySMTPError marks 5xx replies as permanent.
func classifySMTPError(err error) error {
	if err == nil {
		return nil
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 {
		return fmt.Errorf("smtp rejected message (%d %s): %w", protoErr.Code, protoErr.Msg, ErrPermanent)
	}
	return fmt.Errorf("smtp send: %w", err)
}
