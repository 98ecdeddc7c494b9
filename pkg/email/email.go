// Package email delivers plain-text notifications through a pluggable provider.
package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
)

// Message is a rendered outbound e-mail.
type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

// Validate reports whether the message can be delivered.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	for _, to := range m.To {
		if _, err := mail.ParseAddress(to.Address); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", to.Address, err)
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("message has no subject")
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("message has no content")
	}
	return nil
}

// Sender delivers messages synchronously; callers decide whether to run it in the background.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
