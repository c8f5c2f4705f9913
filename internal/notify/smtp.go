// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package notify

import (
	"context"
	"time"

	"github.com/samber/oops"
	mail "gopkg.in/mail.v2"
)

// DefaultSMTPTimeout bounds dialing and writing a single message.
const DefaultSMTPTimeout = 10 * time.Second

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	SSL      bool
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(timeout time.Duration, m *mail.Message) error
}

// NewSMTPSender validates cfg and creates an SMTPSender.
// From defaults to Username.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}

	s := &SMTPSender{cfg: cfg}
	s.send = s.dialAndSend
	return s, nil
}

// Send delivers msg. The context deadline, when sooner than the configured
// timeout, bounds the SMTP session.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("to", msg.To).Wrap(err)
	}

	timeout := s.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := s.send(timeout, s.message(msg)); err != nil {
		return oops.Code("SMTP_SEND_FAILED").
			With("to", msg.To).
			With("kind", string(msg.Kind)).
			With("host", s.cfg.Host).
			Wrap(err)
	}
	return nil
}

func (s *SMTPSender) message(msg Message) *mail.Message {
	m := mail.NewMessage()
	m.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m
}

func (s *SMTPSender) dialAndSend(timeout time.Duration, m *mail.Message) error {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.SSL = s.cfg.SSL
	d.Timeout = timeout
	return d.DialAndSend(m) //nolint:wrapcheck // wrapped by Send
}
