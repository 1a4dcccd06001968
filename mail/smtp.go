package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// SMTPConfig configures [SMTPSender]. Works with any STARTTLS-capable
// provider: SES, Mailgun, Mailpit for local development.
type SMTPConfig struct {
	Host        string
	Port        string
	Username    string
	Password    string
	FromAddress string
	// FromName, when set, is used as the display name on the From header.
	FromName string
}

// SMTPSender delivers rendered messages over SMTP with STARTTLS enforced.
// Plaintext sessions are refused outright.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender returns a sender for the given config.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send renders the named template and delivers it to recipient. The returned
// message ID is the value written on the Message-ID header, usable for
// correlating provider-side delivery logs.
func (s *SMTPSender) Send(ctx context.Context, template string, recipient string, data map[string]string) (string, error) {
	rendered, err := render(template, data)
	if err != nil {
		return "", err
	}

	from := s.cfg.FromAddress
	if v, ok := data["from"]; ok && v != "" {
		from = v
	}

	messageID := uuid.NewString() + "@" + s.cfg.Host

	var msg strings.Builder
	if s.cfg.FromName != "" {
		fmt.Fprintf(&msg, "From: %s <%s>\r\n", s.cfg.FromName, from)
	} else {
		fmt.Fprintf(&msg, "From: %s\r\n", from)
	}
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", rendered.Subject)
	fmt.Fprintf(&msg, "Message-ID: <%s>\r\n", messageID)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(rendered.Body)

	if err := s.deliver(ctx, from, recipient, msg.String()); err != nil {
		return "", err
	}

	return messageID, nil
}

// deliver dials, upgrades to TLS, authenticates, and writes the message.
// The dial respects ctx cancellation; the SMTP conversation afterwards is
// bounded by the server, not ctx.
func (s *SMTPSender) deliver(ctx context.Context, from, recipient, msg string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp server does not advertise STARTTLS: refusing plaintext session")
	}
	if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}

	if s.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := fmt.Fprint(wc, msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return client.Quit()
}
