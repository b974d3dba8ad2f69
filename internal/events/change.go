package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

// ChangeData is the wire form of a docstore.Change.
type ChangeData struct {
	Kind   docstore.ChangeKind `json:"kind"`
	Path   docstore.Path       `json:"path"`
	Before docstore.Fields     `json:"before,omitempty"`
	After  docstore.Fields     `json:"after,omitempty"`
}

// DecodeChange reads an OrderChanged envelope. Numbers are kept as
// json.Number so integer fields survive the trip.
func DecodeChange(evt Envelope) (docstore.Change, error) {
	if evt.EventType != TypeOrderChanged {
		return docstore.Change{}, fmt.Errorf("unexpected event type %q", evt.EventType)
	}
	dec := json.NewDecoder(bytes.NewReader(evt.Data))
	dec.UseNumber()
	var cd ChangeData
	if err := dec.Decode(&cd); err != nil {
		return docstore.Change{}, fmt.Errorf("decode change: %w", err)
	}
	if cd.Path == "" {
		return docstore.Change{}, fmt.Errorf("change without path")
	}
	return docstore.Change{Kind: cd.Kind, Path: cd.Path, Before: cd.Before, After: cd.After}, nil
}

// ChangePublisher relays store changes to a Kafka topic keyed by document
// path. It satisfies changefeed.Handler.
type ChangePublisher struct {
	producer *Producer
	topic    string
}

func NewChangePublisher(producer *Producer, topic string) *ChangePublisher {
	return &ChangePublisher{producer: producer, topic: topic}
}

func (p *ChangePublisher) HandleChange(ctx context.Context, c docstore.Change) error {
	evt, err := NewEnvelope(TypeOrderChanged, c.Path.String(), ChangeData{Kind: c.Kind, Path: c.Path, Before: c.Before, After: c.After})
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, p.topic, c.Path.String(), evt); err != nil {
		return fmt.Errorf("publish %s: %w", c.Path, err)
	}
	log.Printf("[%s] relayed %s %s", p.topic, c.Kind, c.Path)
	return nil
}
