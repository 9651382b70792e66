package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordanmaier/copperline-backend/pkg/config"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

// Message is a plain-text email ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP delivers mail through a configured relay.
type SMTP struct {
	addr   string
	from   string
	auth   smtp.Auth
	send   sendFunc
	logger *logger.Logger
}

type noop struct {
	logger *logger.Logger
}

// New returns an SMTP sender, or a no-op sender when no relay is configured
// so order flows keep working in environments without mail.
func New(cfg config.SMTPConfig, logg *logger.Logger) Sender {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return &noop{logger: logg}
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}

	return &SMTP{
		addr:   fmt.Sprintf("%s:%d", host, cfg.Port),
		from:   cfg.From,
		auth:   auth,
		send:   smtp.SendMail,
		logger: logg,
	}
}

// Send delivers a single plain-text message.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	payload := buildMessage(s.from, msg)
	if err := s.send(s.addr, s.auth, s.from, []string{msg.To}, payload); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if s.logger != nil {
		s.logger.Info(ctx, fmt.Sprintf("mail sent (%s)", msg.Subject))
	}
	return nil
}

func (n *noop) Send(ctx context.Context, msg Message) error {
	if n.logger != nil {
		n.logger.Info(ctx, fmt.Sprintf("mail disabled, dropping message (%s)", msg.Subject))
	}
	return nil
}

func buildMessage(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}
