package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

// Repository owns the order documents under shops/{shopId}/orders.
type Repository struct {
	store docstore.Store
	newID func() string
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store, newID: uuid.NewString}
}

// NewOrder is a customer checkout request. TotalAmount is optional; when set
// it must match the line total.
type NewOrder struct {
	CustomerName    string    `json:"customerName"`
	CustomerPhone   string    `json:"customerPhone"`
	Items           []Item    `json:"items"`
	TotalAmount     *int64    `json:"totalAmount,omitempty"`
	OrderType       string    `json:"orderType"`
	TableNumber     string    `json:"tableNumber,omitempty"`
	PickupDate      string    `json:"pickupDate,omitempty"`
	DeliveryAddress string    `json:"deliveryAddress,omitempty"`
	Location        *Location `json:"location,omitempty"`
}

// Validate turns a checkout request into a Pending/Placed order.
func (n NewOrder) Validate() (Order, error) {
	if strings.TrimSpace(n.CustomerName) == "" {
		return Order{}, apperr.Wrap(apperr.ErrInvalidOrder, "customer name is required")
	}
	if len(n.Items) == 0 {
		return Order{}, apperr.Wrap(apperr.ErrInvalidOrder, "order has no items")
	}
	typ, err := ParseType(n.OrderType)
	if err != nil {
		return Order{}, err
	}
	switch typ {
	case TypeDelivery:
		if strings.TrimSpace(n.DeliveryAddress) == "" {
			return Order{}, apperr.Wrap(apperr.ErrInvalidOrder, "delivery orders need an address")
		}
	case TypeDineIn:
		if strings.TrimSpace(n.TableNumber) == "" {
			return Order{}, apperr.Wrap(apperr.ErrInvalidOrder, "dine-in orders need a table number")
		}
	}
	o := Order{
		CustomerName:    strings.TrimSpace(n.CustomerName),
		CustomerPhone:   strings.TrimSpace(n.CustomerPhone),
		Items:           append([]Item(nil), n.Items...),
		OrderType:       typ,
		TableNumber:     n.TableNumber,
		PickupDate:      n.PickupDate,
		DeliveryAddress: n.DeliveryAddress,
		Location:        n.Location,
		PaymentStatus:   PaymentPending,
		Status:          StatusPlaced,
	}
	if err := o.validate(); err != nil {
		return Order{}, err
	}
	o.TotalAmount = LineTotal(o.Items)
	if n.TotalAmount != nil && *n.TotalAmount != o.TotalAmount {
		return Order{}, apperr.Wrap(apperr.ErrInvalidOrder, "total %d does not match line total %d", *n.TotalAmount, o.TotalAmount)
	}
	return o, nil
}

// Create validates and stores a new order and returns it as stored.
func (r *Repository) Create(ctx context.Context, shopID string, req NewOrder) (Order, error) {
	o, err := req.Validate()
	if err != nil {
		return Order{}, err
	}
	orderID := r.newID()
	p, err := Path(shopID, orderID)
	if err != nil {
		return Order{}, err
	}
	data := o.fields()
	data["createdAt"] = docstore.ServerTimestamp
	data["updatedAt"] = docstore.ServerTimestamp
	if err := r.store.Commit(ctx, docstore.Create(p, data)); err != nil {
		return Order{}, fmt.Errorf("create order %s: %w", p, err)
	}
	log.Printf("[Orders] created order %s for shop %s total=%d type=%s", orderID, shopID, o.TotalAmount, o.OrderType)
	return r.Get(ctx, shopID, orderID)
}

func (r *Repository) Get(ctx context.Context, shopID, orderID string) (Order, error) {
	p, err := Path(shopID, orderID)
	if err != nil {
		return Order{}, err
	}
	doc, err := r.store.Get(ctx, p)
	if errors.Is(err, docstore.ErrNotFound) {
		return Order{}, apperr.Wrap(apperr.ErrOrderNotFound, "%s/%s", shopID, orderID)
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", p, err)
	}
	return FromDocument(doc)
}

// List returns a shop's orders, newest first. Documents that fail validation
// are logged and skipped.
func (r *Repository) List(ctx context.Context, shopID string) ([]Order, error) {
	col, err := CollectionPath(shopID)
	if err != nil {
		return nil, err
	}
	docs, err := r.store.List(ctx, col)
	if err != nil {
		return nil, fmt.Errorf("list orders %s: %w", col, err)
	}
	out := make([]Order, 0, len(docs))
	for _, doc := range docs {
		o, err := FromDocument(doc)
		if err != nil {
			log.Printf("[Orders] skipping %s: %v", doc.Path, err)
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AttachIntent records the gateway intent id on an order.
func (r *Repository) AttachIntent(ctx context.Context, shopID, orderID, intentID string) error {
	p, err := Path(shopID, orderID)
	if err != nil {
		return err
	}
	err = r.store.Commit(ctx, docstore.Update(p, docstore.Fields{
		"gatewayIntentId": intentID,
		"updatedAt":       docstore.ServerTimestamp,
	}))
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.Wrap(apperr.ErrOrderNotFound, "%s/%s", shopID, orderID)
	}
	return err
}

type EventType string

const (
	EventAdded    EventType = "added"
	EventModified EventType = "modified"
	EventRemoved  EventType = "removed"
)

// Event is one change to an order as seen by real-time subscribers.
type Event struct {
	Type  EventType `json:"type"`
	Order Order     `json:"order"`
}

// EventFromChange decodes the order carried by a store change. Removals carry
// the last known state.
func EventFromChange(c docstore.Change) (Event, error) {
	shopID, orderID, ok := ParsePath(c.Path)
	if !ok {
		return Event{}, apperr.Wrap(apperr.ErrInvalidDocument, "%s is not an order path", c.Path)
	}
	data := c.After
	if c.Kind == docstore.ChangeRemoved {
		data = c.Before
	}
	o, err := decode(shopID, orderID, data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: EventType(c.Kind), Order: o}, nil
}

// Subscribe streams changes to a shop's orders until ctx is done. If orderID
// is non-empty only that order's changes are delivered.
func (r *Repository) Subscribe(ctx context.Context, shopID, orderID string, fn func(context.Context, Event) error) error {
	col, err := CollectionPath(shopID)
	if err != nil {
		return err
	}
	return r.store.Watch(ctx, col, func(ctx context.Context, c docstore.Change) error {
		if orderID != "" && c.Path.ID() != orderID {
			return nil
		}
		evt, err := EventFromChange(c)
		if err != nil {
			log.Printf("[Orders] dropping change %s: %v", c.Path, err)
			return nil
		}
		return fn(ctx, evt)
	})
}
