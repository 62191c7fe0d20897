package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/textproto"
	"strings"

	mail "github.com/go-mail/mail/v2"

	"github.com/ignite/nuntius/internal/domain"
)

// SMTPTransport sends over a held-open SMTP connection via go-mail/mail/v2's
// dialer/sender pair, so the connection manager can reuse one TCP session
// across max_messages_per_connection sends (spec.md §4.4).
type SMTPTransport struct {
	dialer *mail.Dialer
	sender mail.SendCloser
}

// NewSMTPTransport builds a transport for the given host/port/credentials.
// tlsConfig may be nil for a plaintext connection against a local relay.
func NewSMTPTransport(host string, port int, username, password string, tlsConfig *tls.Config) *SMTPTransport {
	d := mail.NewDialer(host, port, username, password)
	if tlsConfig != nil {
		d.TLSConfig = tlsConfig
	}
	return &SMTPTransport{dialer: d}
}

func (t *SMTPTransport) Open(ctx context.Context) error {
	sender, err := t.dialer.Dial()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerDisconnected, err)
	}
	t.sender = sender
	return nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg *domain.EmailMessage) (domain.SendOutcome, error) {
	if t.sender == nil {
		return domain.SendOutcome{}, ErrServerDisconnected
	}

	m := mail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	if err := mail.Send(t.sender, m); err != nil {
		return domain.SendOutcome{}, classifySMTPError(err)
	}

	return domain.SendOutcome{HasStatus: false}, nil
}

func (t *SMTPTransport) Close() error {
	if t.sender == nil {
		return nil
	}
	err := t.sender.Close()
	t.sender = nil
	return err
}

// classifySMTPError maps go-mail/net/smtp failure modes onto the three
// buckets the connection manager understands (spec.md §4.4, §4.7).
// "recipient refused"/"mailbox unavailable" style responses (SMTP 5xx
// addressed at a specific recipient) become ErrRecipientRefused; network
// resets and timeouts become ErrServerDisconnected; anything else is
// treated as transient and retried in place.
func classifySMTPError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())

	if textErr, ok := err.(*textproto.Error); ok {
		if textErr.Code >= 500 && textErr.Code < 600 {
			return fmt.Errorf("%w: %v", ErrRecipientRefused, err)
		}
	}
	if strings.Contains(msg, "recipient refused") ||
		strings.Contains(msg, "mailbox unavailable") ||
		strings.Contains(msg, "user unknown") {
		return fmt.Errorf("%w: %v", ErrRecipientRefused, err)
	}

	var netErr net.Error
	if ne, ok := err.(net.Error); ok {
		netErr = ne
	}
	if netErr != nil || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof") {
		return fmt.Errorf("%w: %v", ErrServerDisconnected, err)
	}

	return fmt.Errorf("%w: %v", ErrTransient, err)
}
