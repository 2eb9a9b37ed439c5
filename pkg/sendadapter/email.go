package sendadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

// EmailAdapter sends HTML email over SMTP
type EmailAdapter struct {
	cfg    EmailConfig
	dialer *gomail.Dialer
	domain string
}

// NewEmailAdapter creates a new EmailAdapter
func NewEmailAdapter(cfg EmailConfig) *EmailAdapter {
	domain := "localhost"
	if at := strings.LastIndex(cfg.FromEmail, "@"); at >= 0 && at < len(cfg.FromEmail)-1 {
		domain = cfg.FromEmail[at+1:]
	}
	return &EmailAdapter{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		domain: domain,
	}
}

// Send delivers one email. The Message-ID is returned as the external id so relay
// webhooks can be matched back to the message.
//
// An attempt that runs out of time is reported as permanent: the SMTP conversation keeps
// going in the background and may still deliver, so sending again could duplicate it.
func (a *EmailAdapter) Send(ctx context.Context, to Recipient, p Payload) (Result, error) {
	if to.Email == "" {
		return Result{}, Permanent(errors.New("recipient has no email address"))
	}

	messageID := a.messageID(p)
	msg := a.buildMessage(to, p, messageID)

	done := make(chan error, 1)
	go func() { done <- a.dialer.DialAndSend(msg) }()

	select {
	case <-ctx.Done():
		return Result{}, Permanent(fmt.Errorf("smtp send abandoned: %w", ctx.Err()))
	case err := <-done:
		if err != nil {
			return Result{}, classifySMTPError(err)
		}
	}
	return Result{ExternalMessageID: messageID}, nil
}

// messageID is stable per idempotency key so every attempt of a send carries the same id
func (a *EmailAdapter) messageID(p Payload) string {
	key := p.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	return fmt.Sprintf("%s@%s", key, a.domain)
}

func (a *EmailAdapter) buildMessage(to Recipient, p Payload, messageID string) *gomail.Message {
	fromName := p.FromName
	if fromName == "" {
		fromName = a.cfg.FromName
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", a.cfg.FromEmail, fromName)
	if to.Name != "" {
		msg.SetAddressHeader("To", to.Email, to.Name)
	} else {
		msg.SetHeader("To", to.Email)
	}
	msg.SetHeader("Subject", p.Subject)
	msg.SetHeader("Message-ID", "<"+messageID+">")
	msg.SetBody("text/html", p.HTML)

	for _, att := range p.Attachments {
		content := att.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {att.ContentType}}))
		}
		msg.Attach(att.Filename, settings...)
	}
	return msg
}

// classifySMTPError marks 5xx replies as permanent; everything else may be retried
func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return Permanent(err)
	}
	return err
}
