// Package email delivers follow-up messages over the operation's own SMTP
// server. It carries the email channel of the follow-up sequences; all
// human-facing content comes rendered from the sequence catalog.
package email

import (
	"context"
	"fmt"
	"time"

	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

const sendTimeout = 15 * time.Second

// Sender sends plain text email via SMTP. Construction returns nil when the
// integration is not configured; callers must skip wiring a nil sender.
type Sender struct {
	host     string
	port     int
	username string
	password string
	from     string
	log      *logger.Logger
}

// NewSender creates an SMTP sender from configuration, or nil when SMTP is
// not configured.
func NewSender(cfg config.EmailConfig, log *logger.Logger) *Sender {
	if !cfg.IsEmailEnabled() {
		return nil
	}
	return &Sender{
		host:     cfg.GetSMTPHost(),
		port:     cfg.GetSMTPPort(),
		username: cfg.GetSMTPUser(),
		password: cfg.GetSMTPPassword(),
		from:     cfg.GetSMTPFrom(),
		log:      log,
	}
}

// Send delivers a plain text message. Sends are not retried here: the
// dispatcher keeps the step unclaimed on failure and the next cycle tries
// again.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	if s == nil {
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("email from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("email to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	s.log.Info("email sent", "subject", subject)
	return nil
}

// client builds a fresh connection per send. Sequence email volume is a
// handful of messages per hour; holding a dialed connection open between
// sends is not worth the reconnect handling.
func (s *Sender) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(sendTimeout),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}
	return gomail.NewClient(s.host, opts...)
}
