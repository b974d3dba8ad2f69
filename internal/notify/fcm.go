package notify

import (
	"context"
	"fmt"
	"log"

	"firebase.google.com/go/v4/messaging"
)

// maxMulticastTokens is the FCM limit per multicast request.
const maxMulticastTokens = 500

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMMessenger sends through Firebase Cloud Messaging.
type FCMMessenger struct {
	client multicastSender
}

func NewFCMMessenger(client *messaging.Client) *FCMMessenger {
	return &FCMMessenger{client: client}
}

func (m *FCMMessenger) Multicast(ctx context.Context, tokens []string, msg Message) (Result, error) {
	var res Result
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		batch := tokens[start:end]

		mm := &messaging.MulticastMessage{Tokens: batch, Data: msg.Data}
		if msg.Title != "" || msg.Body != "" {
			mm.Notification = &messaging.Notification{Title: msg.Title, Body: msg.Body}
		}
		br, err := m.client.SendEachForMulticast(ctx, mm)
		if err != nil {
			if res.SuccessCount == 0 && res.FailureCount == 0 {
				return res, fmt.Errorf("fcm multicast: %w", err)
			}
			// Earlier batches went out; count this one as failed.
			log.Printf("[FCM] batch %d-%d failed: %v", start, end, err)
			for _, tok := range batch {
				res.FailureCount++
				res.Failures = append(res.Failures, TokenFailure{Token: tok, Err: err})
			}
			continue
		}
		res.SuccessCount += br.SuccessCount
		res.FailureCount += br.FailureCount
		for i, r := range br.Responses {
			if r == nil || r.Success || i >= len(batch) {
				continue
			}
			stale := messaging.IsUnregistered(r.Error)
			res.Failures = append(res.Failures, TokenFailure{Token: batch[i], Err: r.Error, Stale: stale})
			log.Printf("[FCM] token %s failed (stale=%v): %v", shortToken(batch[i]), stale, r.Error)
		}
	}
	return res, nil
}

func shortToken(t string) string {
	if len(t) <= 12 {
		return t
	}
	return t[:12] + "..."
}
