package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/memory"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.New())
	repo.newID = func() string { return "O1" }

	created, err := repo.Create(ctx, "S1", NewOrder{
		CustomerName:    "Ravi",
		OrderType:       "delivery",
		DeliveryAddress: "12 MG Road",
		Location:        &Location{Lat: 12.97, Lng: 77.59},
		Items:           []Item{{ItemID: "biryani", Name: "Biryani", Price: 220, Qty: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "O1", created.ID)
	assert.Equal(t, int64(440), created.TotalAmount)
	assert.False(t, created.CreatedAt.IsZero())
	require.NotNil(t, created.Location)
	assert.InDelta(t, 77.59, created.Location.Lng, 0.0001)

	_, err = repo.Get(ctx, "S1", "O2")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.New().WithClock(func() time.Time { return clock })
	repo := NewRepository(store)

	ids := []string{"A", "B", "C"}
	for _, id := range ids {
		id := id
		repo.newID = func() string { return id }
		_, err := repo.Create(ctx, "S1", dineIn(Item{Name: "Idli", Price: 40, Qty: 1}))
		require.NoError(t, err)
		clock = clock.Add(time.Minute)
	}

	got, err := repo.List(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "C", got[0].ID)
	assert.Equal(t, "A", got[2].ID)
}

func TestAttachIntent(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.New())
	o, err := repo.Create(ctx, "S1", dineIn(Item{Name: "Idli", Price: 40, Qty: 1}))
	require.NoError(t, err)

	require.NoError(t, repo.AttachIntent(ctx, "S1", o.ID, "order_abc"))
	got, err := repo.Get(ctx, "S1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, "order_abc", got.GatewayIntentID)

	assert.ErrorIs(t, repo.AttachIntent(ctx, "S1", "missing", "order_abc"), apperr.ErrOrderNotFound)
}

func TestSubscribeFiltersByOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.New()
	repo := NewRepository(store)
	m := NewMachine(store)

	first, err := repo.Create(ctx, "S1", dineIn(Item{Name: "Idli", Price: 40, Qty: 1}))
	require.NoError(t, err)
	second, err := repo.Create(ctx, "S1", dineIn(Item{Name: "Vada", Price: 30, Qty: 1}))
	require.NoError(t, err)

	events := make(chan Event, 8)
	go func() {
		_ = repo.Subscribe(ctx, "S1", first.ID, func(_ context.Context, e Event) error {
			select {
			case events <- e:
			default:
			}
			return nil
		})
	}()

	// Keep writing until the subscription is live and observes the change.
	var got Event
	require.Eventually(t, func() bool {
		_, _ = m.SetOrderStatus(ctx, "S1", second.ID, StatusPreparing)
		_, _ = m.SetOrderStatus(ctx, "S1", first.ID, StatusPreparing)
		_, _ = m.SetOrderStatus(ctx, "S1", first.ID, StatusReady)
		select {
		case got = <-events:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, EventModified, got.Type)
	assert.Equal(t, first.ID, got.Order.ID)
}
