// Package notify delivers quote emails and relays provider delivery events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrNotConfigured is returned by a mailer that has no credentials.
var ErrNotConfigured = errors.New("notify: email service not configured")

// Address is an email address with an optional display name.
type Address struct {
	Email string
	Name  string
}

func (a Address) String() string {
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a transport independent email.
type Message struct {
	From        Address
	To          []Address
	ReplyTo     *Address
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
	// CustomArgs are echoed back by the provider on delivery events.
	CustomArgs map[string]string
	Categories []string
}

// Validate checks the fields every transport needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.From.Email) == "" {
		return errors.New("notify: from address required")
	}
	if len(m.To) == 0 {
		return errors.New("notify: at least one recipient required")
	}
	for _, to := range m.To {
		if _, err := mail.ParseAddress(to.Email); err != nil {
			return fmt.Errorf("notify: invalid recipient %q: %w", to.Email, err)
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("notify: subject required")
	}
	return nil
}

// Mailer sends email. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Configured() bool
}

// ProviderError carries the provider response of a rejected send.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("notify: provider rejected message with status %d", e.StatusCode)
}

// UnconfiguredMailer is used when no transport credentials are present.
type UnconfiguredMailer struct{}

func (UnconfiguredMailer) Send(context.Context, Message) error { return ErrNotConfigured }

func (UnconfiguredMailer) Configured() bool { return false }
