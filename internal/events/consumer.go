package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// HandlerFunc processes one envelope. Returning an error leaves the message
// uncommitted so it is redelivered.
type HandlerFunc func(ctx context.Context, evt Envelope) error

// MessageReader is the subset of *kafka.Reader the consumer loop needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consume fetches and handles messages until ctx is cancelled. Messages are
// committed only after the handler succeeds; undecodable payloads are
// committed and skipped.
func Consume(ctx context.Context, reader MessageReader, topic string, logger *log.Logger, handle HandlerFunc) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("[%s] read error: %w", topic, err)
		}

		var evt Envelope
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Printf("[%s] bad JSON: %v; payload=%s", topic, err, string(msg.Value))
			if commitErr := reader.CommitMessages(ctx, msg); commitErr != nil {
				logger.Printf("[%s] commit error after bad JSON: %v", topic, commitErr)
			}
			continue
		}

		// Retry the same message until it is handled; later messages on the
		// partition wait behind it.
		for attempt := 1; ; attempt++ {
			err := handle(ctx, evt)
			if err == nil {
				break
			}
			logger.Printf("[%s] %s key=%s attempt=%d failed: %v", topic, evt.EventType, string(msg.Key), attempt, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff(attempt)):
			}
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Printf("[%s] commit error: %v", topic, err)
		}
	}
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
