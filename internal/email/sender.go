// Package email envia los correos de cuenta del gateway local (confirmacion y recuperacion).
package email

import (
	"context"
	"errors"
	"sync"
)

// Sender envia los enlaces de cuenta.
type Sender interface {
	SendConfirmation(ctx context.Context, toEmail, link string) error
	SendPasswordRecovery(ctx context.Context, toEmail, link string) error
}

type disabledSender struct {
	reason string
}

// NewDisabledSender falla siempre con reason.
func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendConfirmation(context.Context, string, string) error {
	return s.err()
}

func (s *disabledSender) SendPasswordRecovery(context.Context, string, string) error {
	return s.err()
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

// Message es un correo capturado por MemorySender.
type Message struct {
	Kind string
	To   string
	Link string
}

// MemorySender guarda los correos en memoria para desarrollo y tests.
type MemorySender struct {
	mu   sync.Mutex
	sent []Message
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) SendConfirmation(_ context.Context, toEmail, link string) error {
	s.record(Message{Kind: "confirmation", To: toEmail, Link: link})
	return nil
}

func (s *MemorySender) SendPasswordRecovery(_ context.Context, toEmail, link string) error {
	s.record(Message{Kind: "recovery", To: toEmail, Link: link})
	return nil
}

func (s *MemorySender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *MemorySender) record(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
}
