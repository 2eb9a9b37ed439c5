// Package sendadapter hides the raw email and WhatsApp transports behind one interface.
package sendadapter

import (
	"context"
	"errors"
)

// ErrUnavailable means the adapter is refusing all sends, e.g. its circuit is open.
// Callers treat it as a systemic failure rather than a per-recipient one.
var ErrUnavailable = errors.New("send adapter unavailable")

// Recipient is the addressee of a single send
type Recipient struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// Attachment is a file sent with an email
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Payload is the rendered, per-recipient content of a send
type Payload struct {
	// IdempotencyKey is the same for every attempt of one send. Adapters that can pass an
	// id to the provider derive it from the key.
	IdempotencyKey string

	// email
	Subject     string
	HTML        string
	FromName    string
	Attachments []Attachment

	// whatsapp
	TemplateName string
	Language     string
	Parameters   []string
	Body         string
}

// Result is what the provider returned for an accepted send
type Result struct {
	ExternalMessageID string
}

// Adapter sends one message to one recipient
type Adapter interface {
	Send(ctx context.Context, to Recipient, payload Payload) (Result, error)
}

// PermanentError marks a failure that retrying will not fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err should not be retried
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Registry maps a channel name to its adapter
type Registry map[string]Adapter

// For returns the adapter for a channel
func (r Registry) For(channel string) (Adapter, bool) {
	a, ok := r[channel]
	return a, ok
}
