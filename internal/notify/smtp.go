package notify

import (
	"context"
	"net"
	"net/smtp"
	"strings"

	"github.com/samber/oops"
)

// SMTPConfig holds SMTP credentials.
type SMTPConfig struct {
	// Server is host:port.
	Server   string
	User     string
	Password string
	// From defaults to User.
	From string
}

// SMTPMailer sends mail with net/smtp using PLAIN auth.
type SMTPMailer struct {
	cfg  SMTPConfig
	host string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer validates cfg and creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Server == "" || cfg.User == "" || cfg.Password == "" {
		return nil, oops.Errorf("SMTP server, user and password must be set")
	}
	host, _, err := net.SplitHostPort(cfg.Server)
	if err != nil {
		return nil, oops.With("server", cfg.Server).Wrapf(err, "invalid SMTP server (expected host:port)")
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPMailer{cfg: cfg, host: host, send: smtp.SendMail}, nil
}

// Send delivers email. net/smtp has no context support, so ctx is only
// checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.host)
	if err := m.send(m.cfg.Server, auth, m.cfg.From, []string{email.To}, buildMessage(m.cfg.From, email)); err != nil {
		return oops.With("server", m.cfg.Server).With("to", email.To).Wrapf(err, "send email")
	}
	return nil
}

// buildMessage renders a multipart/alternative message with text and HTML parts.
func buildMessage(from string, email Email) []byte {
	const boundary = "studentauth-alt-boundary"

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + email.To + "\r\n")
	b.WriteString("Subject: " + email.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(email.Text + "\r\n")

	if email.HTML != "" {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(email.HTML + "\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
