package payment

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/memory"
)

const secret = "test_secret"

type fixedGateway struct {
	mu    sync.Mutex
	id    string
	err   error
	calls int
}

func (g *fixedGateway) CreateOrder(_ context.Context, req OrderRequest) (GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return GatewayOrder{}, g.err
	}
	return GatewayOrder{ID: g.id, Amount: req.Amount, Currency: req.Currency}, nil
}

type fixture struct {
	store    *memory.Store
	orders   *order.Repository
	shops    *shop.Directory
	gateway  *fixedGateway
	mapper   *IntentMapper
	verifier *CallbackVerifier
	orderID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	f := &fixture{
		store:   store,
		orders:  order.NewRepository(store),
		shops:   shop.NewDirectory(store),
		gateway: &fixedGateway{id: "order_ABC"},
	}
	f.mapper = NewIntentMapper(store, f.gateway, f.orders, f.shops, "INR")
	f.verifier = NewCallbackVerifier(store, order.NewMachine(store), secret, "https://app.example/#/order-success")

	_, err := f.shops.Register(ctx, "S1", "Udupi Corner", "uid-1")
	require.NoError(t, err)
	o, err := f.orders.Create(ctx, "S1", order.NewOrder{
		CustomerName: "Asha",
		OrderType:    "pickup",
		Items:        []order.Item{{ItemID: "thali", Name: "Thali", Price: 150, Qty: 1}},
	})
	require.NoError(t, err)
	f.orderID = o.ID
	return f
}

func TestCreateIntentWritesMapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	intent, err := f.mapper.CreateIntent(ctx, "S1", f.orderID, 15000)
	require.NoError(t, err)
	assert.Equal(t, Intent{IntentID: "order_ABC", Amount: 15000, Currency: "INR"}, intent)

	m, err := lookupMapping(ctx, f.store, "order_ABC")
	require.NoError(t, err)
	assert.Equal(t, "S1", m.ShopID)
	assert.Equal(t, f.orderID, m.OrderID)

	o, err := f.orders.Get(ctx, "S1", f.orderID)
	require.NoError(t, err)
	assert.Equal(t, "order_ABC", o.GatewayIntentID)
}

func TestCreateIntentValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, amt := range []int64{0, -100, 14999} {
		_, err := f.mapper.CreateIntent(ctx, "S1", f.orderID, amt)
		assert.ErrorIs(t, err, apperr.ErrInvalidAmount, "amount %d", amt)
	}
	_, err := f.mapper.CreateIntent(ctx, "S1", "", 15000)
	assert.ErrorIs(t, err, apperr.ErrInvalidIdentifier)
	_, err = f.mapper.CreateIntent(ctx, "S1", "missing", 15000)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
	assert.Zero(t, f.gateway.calls, "gateway must not be called for rejected input")
}

func TestCreateIntentRejectsTotalsBeyondMinorUnits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	huge, err := f.orders.Create(ctx, "S1", order.NewOrder{
		CustomerName: "Asha",
		OrderType:    "pickup",
		Items:        []order.Item{{ItemID: "feast", Name: "Feast", Price: math.MaxInt64 / 50, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = f.mapper.CreateIntent(ctx, "S1", huge.ID, 100)
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
	assert.Zero(t, f.gateway.calls)
}

func TestCreateIntentGatewayFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.err = errors.New("timeout")

	_, err := f.mapper.CreateIntent(ctx, "S1", f.orderID, 15000)
	assert.ErrorIs(t, err, apperr.ErrGatewayUnavailable)

	_, err = f.store.Get(ctx, docstore.MustJoin(mappingsCollection, "order_ABC"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestMappingIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mapper.CreateIntent(ctx, "S1", f.orderID, 15000)
	require.NoError(t, err)
	_, err = f.mapper.CreateIntent(ctx, "S1", f.orderID, 15000)
	assert.ErrorIs(t, err, apperr.ErrMappingExists)
}

func TestCreateIntentInactiveShop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	off := false
	_, err := f.shops.UpdateSettings(ctx, "S1", shop.Settings{Active: &off})
	require.NoError(t, err)

	_, err = f.mapper.CreateIntent(ctx, "S1", f.orderID, 15000)
	assert.ErrorIs(t, err, apperr.ErrShopInactive)
}

func TestCallbackMarksOrderPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.mapper.CreateIntent(ctx, "S1", f.orderID, 15000)
	require.NoError(t, err)

	res, err := f.verifier.HandleCallback(ctx, Callback{
		IntentID:  "order_ABC",
		PaymentID: "pay_123",
		Signature: Sign(secret, "order_ABC", "pay_123"),
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "https://app.example/#/order-success/S1/"+f.orderID, res.RedirectTarget)

	o, err := f.orders.Get(ctx, "S1", f.orderID)
	require.NoError(t, err)
	assert.True(t, o.Paid())
	assert.Equal(t, "pay_123", o.GatewayPaymentID)

	// Replays succeed with the same target and change nothing.
	again, err := f.verifier.HandleCallback(ctx, Callback{
		IntentID:  "order_ABC",
		PaymentID: "pay_123",
		Signature: Sign(secret, "order_ABC", "pay_123"),
	})
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, res.RedirectTarget, again.RedirectTarget)
}

func TestCallbackRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.mapper.CreateIntent(ctx, "S1", f.orderID, 15000)
	require.NoError(t, err)

	cases := []struct {
		name string
		cb   Callback
		want error
	}{
		{"missing signature", Callback{IntentID: "order_ABC", PaymentID: "pay_1"}, apperr.ErrInvalidCallbackPayload},
		{"blank intent", Callback{IntentID: " ", PaymentID: "pay_1", Signature: "x"}, apperr.ErrInvalidCallbackPayload},
		{"tampered payment", Callback{IntentID: "order_ABC", PaymentID: "pay_999", Signature: Sign(secret, "order_ABC", "pay_1")}, apperr.ErrSignatureMismatch},
		{"wrong secret", Callback{IntentID: "order_ABC", PaymentID: "pay_1", Signature: Sign("nope", "order_ABC", "pay_1")}, apperr.ErrSignatureMismatch},
		{"tampered unknown intent", Callback{IntentID: "order_ZZZ", PaymentID: "pay_2", Signature: Sign(secret, "order_ZZZ", "pay_1")}, apperr.ErrSignatureMismatch},
		{"unknown intent", Callback{IntentID: "order_ZZZ", PaymentID: "pay_1", Signature: Sign(secret, "order_ZZZ", "pay_1")}, apperr.ErrMappingMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.verifier.HandleCallback(ctx, tc.cb)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	o, err := f.orders.Get(ctx, "S1", f.orderID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
}

func TestCallbackWithoutSecretRejectsEverything(t *testing.T) {
	f := newFixture(t)
	v := NewCallbackVerifier(f.store, order.NewMachine(f.store), "", "/")
	_, err := v.HandleCallback(context.Background(), Callback{IntentID: "a", PaymentID: "b", Signature: Sign("", "a", "b")})
	assert.ErrorIs(t, err, apperr.ErrSignatureMismatch)
}
