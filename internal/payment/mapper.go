package payment

import (
	"context"
	"log"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
)

// minorUnitsPerRupee converts stored whole-rupee totals to gateway paise.
const minorUnitsPerRupee = 100

var tracer = otel.Tracer("github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payment")

// Intent is returned to the checkout page to open the hosted checkout.
type Intent struct {
	IntentID string `json:"intentId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// IntentMapper creates gateway intents for unpaid orders and records the
// intent -> order mapping consumed by the callback verifier.
type IntentMapper struct {
	store    docstore.Store
	gateway  Gateway
	orders   *order.Repository
	shops    *shop.Directory
	currency string
}

func NewIntentMapper(store docstore.Store, gateway Gateway, orders *order.Repository, shops *shop.Directory, currency string) *IntentMapper {
	if currency == "" {
		currency = "INR"
	}
	return &IntentMapper{store: store, gateway: gateway, orders: orders, shops: shops, currency: currency}
}

// CreateIntent is not transactional across the gateway and the store: if the
// mapping write fails after the remote intent exists, the intent is orphaned
// and the customer retries with a fresh one.
func (m *IntentMapper) CreateIntent(ctx context.Context, shopID, orderID string, amountMinorUnits int64) (Intent, error) {
	ctx, span := tracer.Start(ctx, "payment.CreateIntent")
	defer span.End()
	span.SetAttributes(
		attribute.String("shop.id", shopID),
		attribute.String("order.id", orderID),
		attribute.Int64("amount.minor", amountMinorUnits),
	)

	intent, err := m.createIntent(ctx, shopID, orderID, amountMinorUnits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.CodeOf(err, "ServerError"))
		return Intent{}, err
	}
	span.SetAttributes(attribute.String("intent.id", intent.IntentID))
	return intent, nil
}

func (m *IntentMapper) createIntent(ctx context.Context, shopID, orderID string, amount int64) (Intent, error) {
	if amount <= 0 {
		return Intent{}, apperr.Wrap(apperr.ErrInvalidAmount, "amount must be a positive integer, got %d", amount)
	}
	if shopID == "" || orderID == "" {
		return Intent{}, apperr.Wrap(apperr.ErrInvalidIdentifier, "shopId and orderId are required")
	}
	if err := m.shops.EnsureAccepting(ctx, shopID); err != nil {
		return Intent{}, err
	}
	ord, err := m.orders.Get(ctx, shopID, orderID)
	if err != nil {
		return Intent{}, err
	}
	if ord.Paid() {
		return Intent{}, apperr.Wrap(apperr.ErrOrderAlreadyPaid, "%s/%s", shopID, orderID)
	}
	if ord.TotalAmount > math.MaxInt64/minorUnitsPerRupee {
		return Intent{}, apperr.Wrap(apperr.ErrInvalidAmount, "order total %d is too large to charge", ord.TotalAmount)
	}
	if want := ord.TotalAmount * minorUnitsPerRupee; amount != want {
		return Intent{}, apperr.Wrap(apperr.ErrInvalidAmount, "amount %d does not match order total %d", amount, want)
	}

	gwOrder, err := m.gateway.CreateOrder(ctx, OrderRequest{Amount: amount, Currency: m.currency, Receipt: newReceipt()})
	if err != nil {
		log.Printf("[Intent] gateway create failed shop=%s order=%s: %v", shopID, orderID, err)
		return Intent{}, apperr.Wrap(apperr.ErrGatewayUnavailable, "%v", err)
	}

	mapping := Mapping{IntentID: gwOrder.ID, ShopID: shopID, OrderID: orderID, Amount: amount, Currency: m.currency}
	if err := createMapping(ctx, m.store, mapping); err != nil {
		log.Printf("[Intent] orphaned gateway intent %s for %s/%s: %v", gwOrder.ID, shopID, orderID, err)
		return Intent{}, err
	}
	if err := m.orders.AttachIntent(ctx, shopID, orderID, gwOrder.ID); err != nil {
		log.Printf("[Intent] warning: could not attach intent %s to order %s/%s: %v", gwOrder.ID, shopID, orderID, err)
	}

	log.Printf("[Intent] created intent %s for %s/%s amount=%d %s", gwOrder.ID, shopID, orderID, amount, m.currency)
	currency := gwOrder.Currency
	if currency == "" {
		currency = m.currency
	}
	amt := gwOrder.Amount
	if amt == 0 {
		amt = amount
	}
	return Intent{IntentID: gwOrder.ID, Amount: amt, Currency: currency}, nil
}
