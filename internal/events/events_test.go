package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

func TestChangeEnvelopeKeepsIntegersAndTimes(t *testing.T) {
	paidAt := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	evt, err := NewEnvelope(TypeOrderChanged, "shops/S1/orders/O1", ChangeData{
		Kind:   docstore.ChangeModified,
		Path:   "shops/S1/orders/O1",
		Before: docstore.Fields{"paymentStatus": "Pending", "totalAmount": int64(150)},
		After:  docstore.Fields{"paymentStatus": "Paid", "totalAmount": int64(150), "paidAt": paidAt},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))

	c, err := DecodeChange(back)
	require.NoError(t, err)
	assert.Equal(t, docstore.ChangeModified, c.Kind)
	assert.Equal(t, docstore.Path("shops/S1/orders/O1"), c.Path)
	assert.Equal(t, json.Number("150"), c.After["totalAmount"])

	var out struct {
		Total  int64     `doc:"totalAmount"`
		PaidAt time.Time `doc:"paidAt"`
	}
	require.NoError(t, docstore.Decode(c.After, &out))
	assert.Equal(t, int64(150), out.Total)
	assert.True(t, paidAt.Equal(out.PaidAt))
}

func TestDecodeChangeRejectsOtherEvents(t *testing.T) {
	_, err := DecodeChange(Envelope{EventType: TypePaymentConfirmed, Data: json.RawMessage(`{}`)})
	assert.Error(t, err)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []string
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, string(m.Key))
	}
	return nil
}

func (r *fakeReader) commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

func TestConsumeCommitsAfterSuccess(t *testing.T) {
	good, _ := json.Marshal(Envelope{EventType: TypeOrderChanged, Data: json.RawMessage(`{}`)})
	reader := &fakeReader{msgs: []kafka.Message{
		{Key: []byte("bad"), Value: []byte("{not json")},
		{Key: []byte("flaky"), Value: good},
	}}

	var calls int
	handle := func(context.Context, Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Consume(ctx, reader, "orders.changes.v1", log.New(&bytes.Buffer{}, "", 0), handle) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"bad", "flaky"}, reader.commits())
	assert.Equal(t, 2, calls)
}
