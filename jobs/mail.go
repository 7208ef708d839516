package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	FromName string
	Username string
	Password string
	TLS      bool
}

// SMTPSender delivers email over SMTP, dialling once per message.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender returns a Sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.FromName == "" {
		cfg.FromName = "RFP Desk"
	}
	return &SMTPSender{cfg: cfg}
}

// Send builds a text message with an optional HTML alternative and sends it.
func (s *SMTPSender) Send(ctx context.Context, payload SendEmailPayload) error {
	m, err := s.message(payload)
	if err != nil {
		return err
	}
	c, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("smtp: create client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(payload SendEmailPayload) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return nil, fmt.Errorf("smtp: set from: %w", err)
	}
	if err := m.To(payload.To); err != nil {
		return nil, fmt.Errorf("smtp: set to: %w", err)
	}
	// Header injection guard.
	m.Subject(strings.NewReplacer("\r", "", "\n", "").Replace(payload.Subject))
	m.SetBodyString(mail.TypeTextPlain, payload.Text)
	if payload.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, payload.HTML)
	}
	return m, nil
}

func (s *SMTPSender) options() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password))
	}
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	return opts
}
