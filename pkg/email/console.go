package email

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of delivering them. It keeps the sent messages for inspection.
type ConsoleSender struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

var _ Sender = (*ConsoleSender)(nil)

// NewConsoleSender constructs a logging sender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// Send implements Sender.
func (s *ConsoleSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	s.logger.Info("email",
		zap.String("to", strings.Join(to, ", ")),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

// Sent returns a copy of the messages recorded so far.
func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
