package order

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/memory"
)

func seedOrder(t *testing.T) (*Repository, *Machine, Order) {
	t.Helper()
	store := memory.New()
	repo := NewRepository(store)
	o, err := repo.Create(context.Background(), "S1", dineIn(Item{ItemID: "thali", Name: "Thali", Price: 150, Qty: 1}))
	require.NoError(t, err)
	return repo, NewMachine(store), o
}

func TestSetPaymentStatusIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, m, o := seedOrder(t)

	wrote, err := m.SetPaymentStatus(ctx, "S1", o.ID, PaymentPaid, "pay_123")
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = m.SetPaymentStatus(ctx, "S1", o.ID, PaymentPaid, "pay_456")
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := repo.Get(ctx, "S1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "pay_123", got.GatewayPaymentID)
	require.NotNil(t, got.PaidAt)
	assert.False(t, got.PaidAt.IsZero())
}

func TestPaymentNeverRegresses(t *testing.T) {
	ctx := context.Background()
	repo, m, o := seedOrder(t)

	_, err := m.SetPaymentStatus(ctx, "S1", o.ID, PaymentPaid, "pay_1")
	require.NoError(t, err)

	_, err = m.SetPaymentStatus(ctx, "S1", o.ID, PaymentPending, "")
	assert.ErrorIs(t, err, apperr.ErrPaymentStatusRegression)

	got, err := repo.Get(ctx, "S1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
}

func TestConcurrentPaymentConfirmationsWriteOnce(t *testing.T) {
	ctx := context.Background()
	_, m, o := seedOrder(t)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		writes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrote, err := m.SetPaymentStatus(ctx, "S1", o.ID, PaymentPaid, "pay_1")
			assert.NoError(t, err)
			if wrote {
				mu.Lock()
				writes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, writes)
}

func TestSetPaymentStatusUnknownOrder(t *testing.T) {
	_, m, _ := seedOrder(t)
	_, err := m.SetPaymentStatus(context.Background(), "S1", "missing", PaymentPaid, "pay_1")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}

func TestCompletedIsTerminal(t *testing.T) {
	ctx := context.Background()
	repo, m, o := seedOrder(t)

	_, err := m.SetOrderStatus(ctx, "S1", o.ID, StatusPreparing)
	require.NoError(t, err)
	_, err = m.SetOrderStatus(ctx, "S1", o.ID, StatusCompleted)
	require.NoError(t, err)

	for _, next := range []Status{StatusReady, StatusPreparing, StatusCompleted} {
		_, err = m.SetOrderStatus(ctx, "S1", o.ID, next)
		assert.ErrorIs(t, err, apperr.ErrOrderAlreadyTerminal, "transition to %s", next)
	}

	got, err := repo.Get(ctx, "S1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestStatusMaySkipStages(t *testing.T) {
	ctx := context.Background()
	_, m, o := seedOrder(t)

	wrote, err := m.SetOrderStatus(ctx, "S1", o.ID, StatusReady)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = m.SetOrderStatus(ctx, "S1", o.ID, StatusReady)
	require.NoError(t, err)
	assert.False(t, wrote)

	_, err = m.SetOrderStatus(ctx, "S1", o.ID, StatusPreparing)
	assert.NoError(t, err)
}

func TestPlacedIsNotATarget(t *testing.T) {
	_, m, o := seedOrder(t)
	_, err := m.SetOrderStatus(context.Background(), "S1", o.ID, StatusPlaced)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrderStatus)
}
