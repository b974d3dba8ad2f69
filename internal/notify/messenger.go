// Package notify delivers push notifications to vendor devices.
package notify

import (
	"context"
	"log"
)

// Message is one logical notification. A message without Title and Body is
// sent as data-only so the client decides how to render it.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

type TokenFailure struct {
	Token string
	Err   error
	// Stale is true when the provider reports the token as no longer
	// registered.
	Stale bool
}

type Result struct {
	SuccessCount int
	FailureCount int
	Failures     []TokenFailure
}

// Messenger multicasts a message to device tokens. Per-token failures are
// reported in Result, not as an error; an error means the whole send failed.
type Messenger interface {
	Multicast(ctx context.Context, tokens []string, msg Message) (Result, error)
}

// LogMessenger writes notifications to the log. Used when no push provider is
// configured.
type LogMessenger struct {
	Logger *log.Logger
}

func (m LogMessenger) Multicast(_ context.Context, tokens []string, msg Message) (Result, error) {
	logger := m.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[Notify] (log) to=%d tokens title=%q body=%q data=%v", len(tokens), msg.Title, msg.Body, msg.Data)
	return Result{SuccessCount: len(tokens)}, nil
}
