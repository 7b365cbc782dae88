package mailer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"grc-core/internal/domain"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// SMTPTransport sends plain text mail, upgrading with STARTTLS when offered.
type SMTPTransport struct {
	cfg SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) Name() string { return "smtp" }

func (t *SMTPTransport) Send(ctx context.Context, n Notification) error {
	if err := t.send(ctx, n); err != nil {
		return fmt.Errorf("smtp: %v: %w", err, domain.ErrTransportFailed)
	}
	return nil
}

func (t *SMTPTransport) send(ctx context.Context, n Notification) error {
	msg, err := newMessage(t.cfg.From, n)
	if err != nil {
		return err
	}
	client, err := t.client(ctx)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (t *SMTPTransport) client(ctx context.Context) (*mail.Client, error) {
	host, portStr, err := net.SplitHostPort(t.cfg.Addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("port %q: %w", portStr, err)
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(timeout),
	}
	if t.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}
	return mail.NewClient(host, opts...)
}

func newMessage(from string, n Notification) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("from %q: %w", from, err)
	}
	if err := m.To(n.To); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	m.Subject(subject(n))
	m.SetBodyString(mail.TypeTextPlain, body(n))
	return m, nil
}
