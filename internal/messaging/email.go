package messaging

import (
	"context"
	"fmt"
	"net"
	"time"

	"pipeline_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// EmailSender delivers rendered messages over email.
type EmailSender interface {
	SendEmail(ctx context.Context, toEmail string, msg Message) error
}

// NoopEmailSender is used when email delivery is disabled.
type NoopEmailSender struct{}

func (NoopEmailSender) SendEmail(ctx context.Context, toEmail string, msg Message) error {
	return nil
}

// SMTPSender delivers messages over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewEmailSender builds the configured sender, or a noop when email is
// disabled.
func NewEmailSender(cfg config.MessagingConfig) EmailSender {
	if !cfg.GetEmailEnabled() {
		return NoopEmailSender{}
	}
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) SendEmail(ctx context.Context, toEmail string, msg Message) error {
	m := gomail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
