// Package dispatch reacts to order changes: it books revenue for newly paid
// orders and notifies the shop's vendor devices.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/events"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/notify"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payout"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
)

var tracer = otel.Tracer("github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/dispatch")

// Publisher is satisfied by *events.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, evt events.Envelope) error
}

type Dispatcher struct {
	store     docstore.Store
	shops     *shop.Directory
	messenger notify.Messenger
	planner   *payout.Planner
	logger    *log.Logger

	publisher     Publisher
	paymentsTopic string
}

func New(store docstore.Store, shops *shop.Directory, messenger notify.Messenger, planner *payout.Planner, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{store: store, shops: shops, messenger: messenger, planner: planner, logger: logger}
}

// WithEvents publishes a PaymentConfirmed event for every booked payment.
func (d *Dispatcher) WithEvents(p Publisher, topic string) *Dispatcher {
	d.publisher = p
	d.paymentsTopic = topic
	return d
}

// HandleChange is called for every change under shops/*/orders. Only two
// transitions act: an order added already Paid, and an order moving into
// Paid. Both go through confirmPayment, which books each order once. Orders
// added while still Pending send no "new order" push; vendors hear about an
// order once, when it is paid.
//
// An error means the booking itself failed and the change should be
// redelivered; the relay retries it and the Kafka worker leaves it uncommitted. Notification problems are logged, never returned.
func (d *Dispatcher) HandleChange(ctx context.Context, c docstore.Change) error {
	if _, _, ok := order.ParsePath(c.Path); !ok {
		return nil
	}
	switch c.Kind {
	case docstore.ChangeAdded:
		evt, err := order.EventFromChange(c)
		if err != nil {
			d.logger.Printf("[Dispatcher] ignoring invalid order %s: %v", c.Path, err)
			return nil
		}
		if !evt.Order.Paid() {
			return nil
		}
		return d.confirmPayment(ctx, evt.Order, notify.TypeNewOrder)

	case docstore.ChangeModified:
		if paymentStatus(c.Before) == order.PaymentPaid || paymentStatus(c.After) != order.PaymentPaid {
			return nil
		}
		evt, err := order.EventFromChange(c)
		if err != nil {
			d.logger.Printf("[Dispatcher] ignoring invalid order %s: %v", c.Path, err)
			return nil
		}
		return d.confirmPayment(ctx, evt.Order, notify.TypePaymentPaid)
	}
	return nil
}

func paymentStatus(f docstore.Fields) order.PaymentStatus {
	s, _ := f["paymentStatus"].(string)
	return order.PaymentStatus(s)
}

func (d *Dispatcher) confirmPayment(ctx context.Context, o order.Order, trigger string) error {
	ctx, span := tracer.Start(ctx, "dispatch.ConfirmPayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("shop.id", o.ShopID),
		attribute.String("order.id", o.ID),
		attribute.String("trigger", trigger),
		attribute.Int64("amount", o.TotalAmount),
	)

	booked, err := d.book(ctx, o, trigger)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Bool("booked", booked))
	if !booked {
		d.logger.Printf("[Dispatcher] order %s/%s already booked; skipping duplicate %s", o.ShopID, o.ID, trigger)
		return nil
	}

	d.notifyVendors(ctx, o, trigger)
	d.planPayout(ctx, o)
	d.publish(ctx, o, trigger)
	return nil
}

// book writes the ledger entry and the revenue increment in one batch. The
// ledger entry is write-once, so a redelivered change finds it and books
// nothing.
func (d *Dispatcher) book(ctx context.Context, o order.Order, trigger string) (bool, error) {
	entry, err := LedgerPath(o.ShopID, o.ID)
	if err != nil {
		return false, err
	}
	writes := []docstore.Write{docstore.Create(entry, docstore.Fields{
		"amount":    o.TotalAmount,
		"paymentId": o.GatewayPaymentID,
		"trigger":   trigger,
		"createdAt": docstore.ServerTimestamp,
	})}
	if o.TotalAmount > 0 {
		inc, err := shop.RevenueIncrement(o.ShopID, o.TotalAmount)
		if err != nil {
			return false, err
		}
		writes = append(writes, inc)
	}
	err = d.store.Commit(ctx, writes...)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("book revenue for %s/%s: %w", o.ShopID, o.ID, err)
	}
	d.logger.Printf("[Dispatcher] booked %d for order %s/%s", o.TotalAmount, o.ShopID, o.ID)
	return true, nil
}

func (d *Dispatcher) notifyVendors(ctx context.Context, o order.Order, trigger string) {
	tokens, err := d.shops.DeviceTokens(ctx, o.ShopID)
	if err != nil {
		d.logger.Printf("[Dispatcher] could not load devices for shop %s: %v", o.ShopID, err)
		return
	}
	if len(tokens) == 0 {
		d.logger.Printf("[Dispatcher] shop %s has no registered devices", o.ShopID)
		return
	}

	var msg notify.Message
	if trigger == notify.TypeNewOrder {
		msg = notify.NewOrderMessage(o.ShopID, o.ID, o.TotalAmount)
	} else {
		msg = notify.PaymentPaidMessage(o.ShopID, o.ID, o.TotalAmount, o.ItemsSummary())
	}
	res, err := d.messenger.Multicast(ctx, tokens, msg)
	if err != nil {
		d.logger.Printf("[Dispatcher] %s notification for %s/%s failed: %v", trigger, o.ShopID, o.ID, err)
		return
	}
	d.logger.Printf("[Dispatcher] %s sent for %s/%s success=%d failure=%d", trigger, o.ShopID, o.ID, res.SuccessCount, res.FailureCount)
}

func (d *Dispatcher) planPayout(ctx context.Context, o order.Order) {
	if d.planner == nil {
		return
	}
	s, err := d.shops.Get(ctx, o.ShopID)
	if err != nil {
		if !errors.Is(err, apperr.ErrShopNotFound) {
			d.logger.Printf("[Dispatcher] payout plan for %s/%s: %v", o.ShopID, o.ID, err)
			return
		}
		s = shop.Shop{ID: o.ShopID, PayoutMode: shop.PayoutHold}
	}
	d.planner.Plan(s, o.ID, o.TotalAmount)
}

func (d *Dispatcher) publish(ctx context.Context, o order.Order, trigger string) {
	if d.publisher == nil {
		return
	}
	evt, err := events.NewEnvelope(events.TypePaymentConfirmed, o.ID, map[string]any{
		"shopId":    o.ShopID,
		"orderId":   o.ID,
		"amount":    o.TotalAmount,
		"paymentId": o.GatewayPaymentID,
		"trigger":   trigger,
	})
	if err == nil {
		err = d.publisher.Publish(ctx, d.paymentsTopic, o.ID, evt)
	}
	if err != nil {
		d.logger.Printf("[Dispatcher] failed to publish %s for %s/%s: %v", events.TypePaymentConfirmed, o.ShopID, o.ID, err)
	}
}

// LedgerPath is shops/{shopId}/revenueLedger/{orderId}.
func LedgerPath(shopID, orderID string) (docstore.Path, error) {
	p, err := docstore.Join("shops", shopID, "revenueLedger", orderID)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidIdentifier, "shop %q order %q", shopID, orderID)
	}
	return p, nil
}
