package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

var fixed = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newStore() *Store {
	return New().WithClock(func() time.Time { return fixed })
}

func TestCreateIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	p := docstore.MustJoin("paymentIntentMappings", "order_1")

	require.NoError(t, s.Commit(ctx, docstore.Create(p, docstore.Fields{"shopId": "S1"})))
	err := s.Commit(ctx, docstore.Create(p, docstore.Fields{"shopId": "S2"}))
	require.ErrorIs(t, err, docstore.ErrAlreadyExists)

	doc, err := s.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "S1", doc.Data["shopId"])
}

func TestCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	ledger := docstore.MustJoin("shops", "S1", "revenueLedger", "O1")
	shop := docstore.MustJoin("shops", "S1")

	require.NoError(t, s.Commit(ctx, docstore.Create(ledger, docstore.Fields{"amount": int64(150)})))
	err := s.Commit(ctx,
		docstore.Increment(shop, "revenue", 150, nil),
		docstore.Create(ledger, docstore.Fields{"amount": int64(150)}),
	)
	require.ErrorIs(t, err, docstore.ErrAlreadyExists)

	_, err = s.Get(ctx, shop)
	assert.ErrorIs(t, err, docstore.ErrNotFound, "increment must not apply when the batch fails")
}

func TestIncrementAndServerTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	shop := docstore.MustJoin("shops", "S1")

	require.NoError(t, s.Commit(ctx, docstore.Increment(shop, "revenue", 150, docstore.Fields{"updatedAt": docstore.ServerTimestamp})))
	require.NoError(t, s.Commit(ctx, docstore.Increment(shop, "revenue", 50, nil)))

	doc, err := s.Get(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(200), doc.Data["revenue"])
	assert.Equal(t, fixed, doc.Data["updatedAt"])
}

func TestUpdateRequiresDocument(t *testing.T) {
	err := newStore().Commit(context.Background(), docstore.Update(docstore.MustJoin("shops", "nope"), docstore.Fields{"a": 1}))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestMutateNoopDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	p := docstore.MustJoin("shops", "S1", "orders", "O1")
	require.NoError(t, s.Commit(ctx, docstore.Create(p, docstore.Fields{"paymentStatus": "Paid"})))

	wrote, err := s.Mutate(ctx, p, func(cur docstore.Document, exists bool) (docstore.Fields, error) {
		require.True(t, exists)
		if cur.Data["paymentStatus"] == "Paid" {
			return nil, nil
		}
		return docstore.Fields{"paymentStatus": "Paid"}, nil
	})
	require.NoError(t, err)
	assert.False(t, wrote)
}

func TestReturnedDocumentsDoNotAliasState(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	p := docstore.MustJoin("shops", "S1", "orders", "O1")
	items := []map[string]any{{"name": "Idli", "qty": int64(2)}}
	require.NoError(t, s.Commit(ctx, docstore.Create(p, docstore.Fields{"items": items})))

	doc, err := s.Get(ctx, p)
	require.NoError(t, err)
	doc.Data["items"].([]any)[0].(map[string]any)["name"] = "changed"

	again, err := s.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Idli", again.Data["items"].([]any)[0].(map[string]any)["name"])
}

func TestWatchDeliversChangesForMatchingCollections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newStore()

	var (
		mu  sync.Mutex
		got []docstore.Change
	)
	started := make(chan struct{})
	go func() {
		close(started)
		_ = s.Watch(ctx, "shops/*/orders", func(_ context.Context, c docstore.Change) error {
			mu.Lock()
			got = append(got, c)
			mu.Unlock()
			return nil
		})
	}()
	<-started
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	order := docstore.MustJoin("shops", "S1", "orders", "O1")
	require.NoError(t, s.Commit(ctx, docstore.Create(order, docstore.Fields{"paymentStatus": "Pending"})))
	require.NoError(t, s.Commit(ctx, docstore.Merge(docstore.MustJoin("shops", "S1", "menu", "M1"), docstore.Fields{"name": "Vada"})))
	require.NoError(t, s.Commit(ctx, docstore.Merge(order, docstore.Fields{"paymentStatus": "Paid"})))
	// Identical content does not produce a change.
	require.NoError(t, s.Commit(ctx, docstore.Merge(order, docstore.Fields{"paymentStatus": "Paid"})))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, docstore.ChangeAdded, got[0].Kind)
	assert.Nil(t, got[0].Before)
	assert.Equal(t, docstore.ChangeModified, got[1].Kind)
	assert.Equal(t, "Pending", got[1].Before["paymentStatus"])
	assert.Equal(t, "Paid", got[1].After["paymentStatus"])
}
