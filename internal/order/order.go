package order

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

// PaymentStatus is the payment state of an order. It only moves Pending -> Paid.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentPaid:
		return PaymentStatus(s), nil
	}
	return "", apperr.Wrap(apperr.ErrInvalidOrder, "unknown payment status %q", s)
}

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPlaced    Status = "Placed"
	StatusPreparing Status = "Preparing"
	StatusReady     Status = "Ready"
	StatusCompleted Status = "Completed"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPlaced, StatusPreparing, StatusReady, StatusCompleted:
		return Status(s), nil
	}
	return "", apperr.Wrap(apperr.ErrInvalidOrderStatus, "unknown order status %q", s)
}

func (s Status) Terminal() bool { return s == StatusCompleted }

type Type string

const (
	TypeDineIn   Type = "dinein"
	TypePickup   Type = "pickup"
	TypeDelivery Type = "delivery"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeDineIn, TypePickup, TypeDelivery:
		return Type(s), nil
	}
	return "", apperr.Wrap(apperr.ErrInvalidOrder, "unknown order type %q", s)
}

// Item is a line item. Name and price are snapshots taken when the order is
// placed; prices are whole rupees.
type Item struct {
	ItemID string `doc:"itemId" json:"itemId"`
	Name   string `doc:"name" json:"name"`
	Price  int64  `doc:"price" json:"price"`
	Qty    int64  `doc:"qty" json:"qty"`
}

func (i Item) Subtotal() int64 { return i.Price * i.Qty }

type Location struct {
	Lat float64 `doc:"lat" json:"lat"`
	Lng float64 `doc:"lng" json:"lng"`
}

type Order struct {
	ID     string `doc:"-" json:"id"`
	ShopID string `doc:"-" json:"shopId"`

	CustomerName  string `doc:"customerName" json:"customerName"`
	CustomerPhone string `doc:"customerPhone" json:"customerPhone"`
	Items         []Item `doc:"items" json:"items"`
	TotalAmount   int64  `doc:"totalAmount" json:"totalAmount"`

	OrderType       Type      `doc:"orderType" json:"orderType"`
	TableNumber     string    `doc:"tableNumber" json:"tableNumber,omitempty"`
	PickupDate      string    `doc:"pickupDate" json:"pickupDate,omitempty"`
	DeliveryAddress string    `doc:"deliveryAddress" json:"deliveryAddress,omitempty"`
	Location        *Location `doc:"location" json:"location,omitempty"`

	PaymentStatus PaymentStatus `doc:"paymentStatus" json:"paymentStatus"`
	Status        Status        `doc:"status" json:"status"`

	GatewayIntentID  string     `doc:"gatewayIntentId" json:"gatewayIntentId,omitempty"`
	GatewayPaymentID string     `doc:"gatewayPaymentId" json:"gatewayPaymentId,omitempty"`
	PaidAt           *time.Time `doc:"paidAt" json:"paidAt,omitempty"`
	CreatedAt        time.Time  `doc:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `doc:"updatedAt" json:"updatedAt"`
}

func (o Order) Paid() bool { return o.PaymentStatus == PaymentPaid }

// ItemsSummary renders items as "2 Masala Dosa, 1 Filter Coffee".
func (o Order) ItemsSummary() string {
	parts := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		parts = append(parts, fmt.Sprintf("%d %s", it.Qty, it.Name))
	}
	return strings.Join(parts, ", ")
}

// LineTotal is the sum of item subtotals. Items must already have passed
// validation; use checkedLineTotal for untrusted input.
func LineTotal(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// checkedLineTotal sums non-negative items and fails instead of wrapping.
func checkedLineTotal(items []Item) (int64, error) {
	var total int64
	for i, it := range items {
		if it.Price > 0 && it.Qty > math.MaxInt64/it.Price {
			return 0, apperr.Wrap(apperr.ErrInvalidOrder, "item %d: subtotal overflows", i)
		}
		sub := it.Subtotal()
		if total > math.MaxInt64-sub {
			return 0, apperr.Wrap(apperr.ErrInvalidOrder, "order total overflows at item %d", i)
		}
		total += sub
	}
	return total, nil
}

// validate checks the closed enums and item shape of a stored order.
func (o Order) validate() error {
	if _, err := ParsePaymentStatus(string(o.PaymentStatus)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(o.Status)); err != nil {
		return err
	}
	if _, err := ParseType(string(o.OrderType)); err != nil {
		return err
	}
	for i, it := range o.Items {
		if it.Qty < 1 {
			return apperr.Wrap(apperr.ErrInvalidOrder, "item %d: quantity must be at least 1", i)
		}
		if it.Price < 0 {
			return apperr.Wrap(apperr.ErrInvalidOrder, "item %d: price must not be negative", i)
		}
	}
	if _, err := checkedLineTotal(o.Items); err != nil {
		return err
	}
	if o.TotalAmount < 0 {
		return apperr.Wrap(apperr.ErrInvalidOrder, "total must not be negative")
	}
	return nil
}

// FromDocument decodes and validates an order document.
func FromDocument(doc docstore.Document) (Order, error) {
	shopID, orderID, ok := ParsePath(doc.Path)
	if !ok {
		return Order{}, apperr.Wrap(apperr.ErrInvalidDocument, "%s is not an order path", doc.Path)
	}
	return decode(shopID, orderID, doc.Data)
}

func decode(shopID, orderID string, data docstore.Fields) (Order, error) {
	var o Order
	if err := docstore.Decode(data, &o); err != nil {
		return Order{}, apperr.Wrap(apperr.ErrInvalidDocument, "order %s/%s: %v", shopID, orderID, err)
	}
	o.ShopID, o.ID = shopID, orderID
	if err := o.validate(); err != nil {
		return Order{}, fmt.Errorf("order %s/%s: %w", shopID, orderID, err)
	}
	return o, nil
}

func (o Order) fields() docstore.Fields {
	items := make([]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"itemId": it.ItemID,
			"name":   it.Name,
			"price":  it.Price,
			"qty":    it.Qty,
		})
	}
	f := docstore.Fields{
		"customerName":  o.CustomerName,
		"customerPhone": o.CustomerPhone,
		"items":         items,
		"totalAmount":   o.TotalAmount,
		"orderType":     string(o.OrderType),
		"paymentStatus": string(o.PaymentStatus),
		"status":        string(o.Status),
	}
	switch o.OrderType {
	case TypeDineIn:
		f["tableNumber"] = o.TableNumber
	case TypePickup:
		f["pickupDate"] = o.PickupDate
	case TypeDelivery:
		f["deliveryAddress"] = o.DeliveryAddress
		if o.Location != nil {
			f["location"] = map[string]any{"lat": o.Location.Lat, "lng": o.Location.Lng}
		}
	}
	return f
}

const (
	shopsCollection  = "shops"
	ordersCollection = "orders"
)

// Path returns shops/{shopID}/orders/{orderID}.
func Path(shopID, orderID string) (docstore.Path, error) {
	p, err := docstore.Join(shopsCollection, shopID, ordersCollection, orderID)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidIdentifier, "shop %q order %q", shopID, orderID)
	}
	return p, nil
}

// CollectionPath returns shops/{shopID}/orders.
func CollectionPath(shopID string) (docstore.Path, error) {
	p, err := docstore.Join(shopsCollection, shopID, ordersCollection)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidIdentifier, "shop %q", shopID)
	}
	return p, nil
}

// WatchPattern matches the order collections of every shop.
const WatchPattern docstore.Path = "shops/*/orders"

// ParsePath splits an order document path into its shop and order ids.
func ParsePath(p docstore.Path) (shopID, orderID string, ok bool) {
	seg := p.Segments()
	if len(seg) != 4 || seg[0] != shopsCollection || seg[2] != ordersCollection {
		return "", "", false
	}
	return seg[1], seg[3], true
}
