package changefeed

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/dispatch"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/notify"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payout"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/memory"
)

type recorder struct {
	mu      sync.Mutex
	changes []docstore.Change
}

func (r *recorder) HandleChange(_ context.Context, c docstore.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recorder) paths() []docstore.Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]docstore.Path, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Path)
	}
	return out
}

func TestRelayDeliversOrderChangesToEveryHandler(t *testing.T) {
	store := memory.New()
	var logs bytes.Buffer
	first := HandlerFunc(func(context.Context, docstore.Change) error { return errors.New("boom") })
	rec := &recorder{}
	relay := NewRelay(store, log.New(&logs, "", 0), first, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	// Keep writing until the watcher is registered and sees something.
	require.Eventually(t, func() bool {
		_ = store.Commit(context.Background(),
			docstore.Merge("shops/S1/orders/O1", docstore.Fields{"tick": time.Now().UnixNano()}),
			docstore.Merge("shops/S1/menu/M1", docstore.Fields{"tick": time.Now().UnixNano()}),
		)
		return len(rec.paths()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	for _, p := range rec.paths() {
		assert.Equal(t, docstore.Path("shops/S1/orders/O1"), p)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Contains(t, logs.String(), "boom")
}

// flakyLedgerStore fails the first commit that touches a revenue ledger entry.
type flakyLedgerStore struct {
	*memory.Store
	mu     sync.Mutex
	failed bool
}

func (s *flakyLedgerStore) Commit(ctx context.Context, writes ...docstore.Write) error {
	s.mu.Lock()
	for _, w := range writes {
		if !s.failed && strings.Contains(string(w.Path), "/revenueLedger/") {
			s.failed = true
			s.mu.Unlock()
			return errors.New("transient store error")
		}
	}
	s.mu.Unlock()
	return s.Store.Commit(ctx, writes...)
}

func TestRelayRetriesFailedBooking(t *testing.T) {
	ctx := context.Background()
	store := &flakyLedgerStore{Store: memory.New()}
	logger := log.New(&bytes.Buffer{}, "", 0)
	shops := shop.NewDirectory(store)
	_, err := shops.Register(ctx, "S1", "Udupi Corner", "uid-1")
	require.NoError(t, err)

	d := dispatch.New(store, shops, notify.LogMessenger{Logger: logger}, payout.NewPlanner(logger), logger)
	rec := &recorder{}
	relay := NewRelay(store, logger, d, rec)
	relay.retryBase = 10 * time.Millisecond

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = relay.Run(runCtx) }()

	require.Eventually(t, func() bool {
		_ = store.Commit(ctx, docstore.Merge("shops/_ready/orders/tick", docstore.Fields{"tick": time.Now().UnixNano()}))
		return len(rec.paths()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	o, err := order.NewRepository(store).Create(ctx, "S1", order.NewOrder{
		CustomerName: "Asha",
		OrderType:    "pickup",
		Items:        []order.Item{{ItemID: "thali", Name: "Thali", Price: 150, Qty: 1}},
	})
	require.NoError(t, err)
	_, err = order.NewMachine(store).SetPaymentStatus(ctx, "S1", o.ID, order.PaymentPaid, "pay_1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := shops.Get(ctx, "S1")
		return err == nil && s.Revenue == 150
	}, 2*time.Second, 10*time.Millisecond)

	store.mu.Lock()
	assert.True(t, store.failed, "the first booking attempt should have failed")
	store.mu.Unlock()
}
