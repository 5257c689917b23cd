package mail

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 10 * time.Second

// SMTPSender sends mail through an authenticated SMTP relay. Every send is
// bounded by the caller's context and the dial timeout.
type SMTPSender struct {
	host     string
	port     string
	account  string
	password string
	from     string
	timeout  time.Duration
	send     func(ctx context.Context, msg *gomail.Msg) error
}

var _ Sender = (*SMTPSender)(nil)

func NewSMTPSender(host, port, account, password, from string) *SMTPSender {
	s := &SMTPSender{
		host:     host,
		port:     port,
		account:  account,
		password: password,
		from:     from,
		timeout:  defaultSMTPTimeout,
	}
	s.send = s.dialAndSend
	return s
}

func (s *SMTPSender) SendMagicLink(ctx context.Context, msg MagicLinkMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return fmt.Errorf("smtp: invalid recipient")
	}

	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("smtp: invalid sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("smtp: invalid recipient: %w", err)
	}
	m.Subject(msg.Subject())
	m.SetBodyString(gomail.TypeTextPlain, msg.Body())

	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, m *gomail.Msg) error {
	port, err := strconv.Atoi(s.port)
	if err != nil {
		return fmt.Errorf("invalid port %q", s.port)
	}
	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTimeout(s.timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.account != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.account),
			gomail.WithPassword(s.password),
		)
	}
	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}
