package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	log "github.com/sirupsen/logrus"
)

// SMTPMailer sends email through an SMTP relay with plain auth.
type SMTPMailer struct {
	host string
	port string
	user string
	pass string
	from string

	maxAttempts  int
	initialDelay time.Duration
}

// NewSMTPMailer returns nil when host or from is empty.
func NewSMTPMailer(host, port, user, pass, from string) *SMTPMailer {
	if host == "" || from == "" {
		return nil
	}
	return &SMTPMailer{
		host:         host,
		port:         port,
		user:         user,
		pass:         pass,
		from:         from,
		maxAttempts:  3,
		initialDelay: time.Second,
	}
}

// SendEmail retries up to three times with exponential backoff.
func (s *SMTPMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.user, s.pass, s.host)

	e := email.NewEmail()
	e.From = s.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	delay := s.initialDelay
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err = e.Send(addr, auth); err == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		log.WithFields(log.Fields{
			"attempt":      attempt,
			"max_attempts": s.maxAttempts,
			"error":        err,
			"email":        to,
		}).Warn("Failed to send email, retrying...")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("send email to %s: %w", to, err)
}
