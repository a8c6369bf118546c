// Package smtp sends emails via an SMTP server.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/internal/krypto"
)

// Config contains the settings needed to connect to an SMTP server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password krypto.Secret
	// SSL dials using implicit TLS instead of negotiating STARTTLS.
	SSL bool
}

// Sender sends emails via SMTP. It dials a new connection for every
// email, which is fine for the low volumes we send.
type Sender struct {
	dialer *mail.Dialer
}

func New(cfg Config) *Sender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, string(cfg.Password.SecretValue()))
	d.TLSConfig = &tls.Config{
		ServerName: cfg.Host,
	}
	d.SSL = cfg.SSL

	return &Sender{
		dialer: d,
	}
}

func (s *Sender) Send(_ context.Context, from, recipient email.Address, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", string(from))
	m.SetHeader("To", string(recipient))
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email via smtp: %w", err)
	}

	return nil
}
