package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFCM struct {
	batches [][]string
	bad     map[string]bool
	err     error
}

func (f *fakeFCM) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, m.Tokens)
	br := &messaging.BatchResponse{}
	for _, tok := range m.Tokens {
		if f.bad[tok] {
			br.FailureCount++
			br.Responses = append(br.Responses, &messaging.SendResponse{Error: errors.New("invalid registration")})
			continue
		}
		br.SuccessCount++
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
	}
	return br, nil
}

func TestFCMFailuresDoNotStopTheBatch(t *testing.T) {
	fake := &fakeFCM{bad: map[string]bool{"dead": true}}
	m := &FCMMessenger{client: fake}

	res, err := m.Multicast(context.Background(), []string{"a", "dead", "b"}, NewOrderMessage("S1", "O1", 150))
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "dead", res.Failures[0].Token)
}

func TestFCMChunksLargeTokenSets(t *testing.T) {
	fake := &fakeFCM{}
	m := &FCMMessenger{client: fake}
	tokens := make([]string, 1203)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}

	res, err := m.Multicast(context.Background(), tokens, PaymentPaidMessage("S1", "O1", 150, "1 Thali"))
	require.NoError(t, err)
	assert.Equal(t, 1203, res.SuccessCount)
	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 500)
	assert.Len(t, fake.batches[2], 203)
}

func TestFCMTransportError(t *testing.T) {
	m := &FCMMessenger{client: &fakeFCM{err: errors.New("unavailable")}}
	_, err := m.Multicast(context.Background(), []string{"a"}, Message{})
	assert.Error(t, err)
}

func TestMessages(t *testing.T) {
	n := NewOrderMessage("S1", "O1", 150)
	assert.Equal(t, "🛒 New Order Received", n.Title)
	assert.Equal(t, "₹150 order received", n.Body)
	assert.Equal(t, map[string]string{"type": TypeNewOrder, "shopId": "S1", "orderId": "O1", "amount": "150"}, n.Data)

	p := PaymentPaidMessage("S1", "O1", 150, "2 Idli, 1 Vada")
	assert.Empty(t, p.Title)
	assert.Equal(t, TypePaymentPaid, p.Data["type"])
	assert.Equal(t, "2 Idli, 1 Vada", p.Data["itemsText"])
}
