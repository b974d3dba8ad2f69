package order

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

func dineIn(items ...Item) NewOrder {
	return NewOrder{CustomerName: "Asha", CustomerPhone: "9000000000", OrderType: "dinein", TableNumber: "4", Items: items}
}

func TestValidateComputesLineTotal(t *testing.T) {
	o, err := dineIn(
		Item{ItemID: "dosa", Name: "Masala Dosa", Price: 60, Qty: 2},
		Item{ItemID: "coffee", Name: "Filter Coffee", Price: 30, Qty: 1},
	).Validate()
	require.NoError(t, err)
	assert.Equal(t, int64(150), o.TotalAmount)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, StatusPlaced, o.Status)
	assert.Equal(t, "2 Masala Dosa, 1 Filter Coffee", o.ItemsSummary())
}

func TestValidateRejectsMismatchedTotal(t *testing.T) {
	req := dineIn(Item{Name: "Idli", Price: 40, Qty: 1})
	wrong := int64(41)
	req.TotalAmount = &wrong
	_, err := req.Validate()
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)

	right := int64(40)
	req.TotalAmount = &right
	_, err = req.Validate()
	assert.NoError(t, err)
}

func TestValidateRejectsBadOrders(t *testing.T) {
	cases := map[string]NewOrder{
		"no items":          dineIn(),
		"zero quantity":     dineIn(Item{Name: "Vada", Price: 20, Qty: 0}),
		"negative price":    dineIn(Item{Name: "Vada", Price: -1, Qty: 1}),
		"unknown type":      {CustomerName: "A", OrderType: "takeaway", Items: []Item{{Name: "Vada", Price: 20, Qty: 1}}},
		"delivery address":  {CustomerName: "A", OrderType: "delivery", Items: []Item{{Name: "Vada", Price: 20, Qty: 1}}},
		"dine-in table":     {CustomerName: "A", OrderType: "dinein", Items: []Item{{Name: "Vada", Price: 20, Qty: 1}}},
		"missing customer":  {OrderType: "pickup", Items: []Item{{Name: "Vada", Price: 20, Qty: 1}}},
		"case of the type":  {CustomerName: "A", OrderType: "Pickup", Items: []Item{{Name: "Vada", Price: 20, Qty: 1}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := req.Validate()
			assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
		})
	}
}

func TestValidateRejectsOverflowingTotals(t *testing.T) {
	cases := map[string]NewOrder{
		"wrapped line total": dineIn(
			Item{Name: "Feast", Price: 1 << 62, Qty: 4},
			Item{Name: "Chai", Price: 15, Qty: 1},
		),
		"subtotal overflow": dineIn(Item{Name: "Feast", Price: math.MaxInt64/2 + 1, Qty: 2}),
		"running sum":       dineIn(Item{Name: "Feast", Price: math.MaxInt64, Qty: 1}, Item{Name: "Chai", Price: 1, Qty: 1}),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := req.Validate()
			assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
		})
	}

	o, err := dineIn(Item{Name: "Feast", Price: math.MaxInt64, Qty: 1}).Validate()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), o.TotalAmount)
}

func TestStatusParsingIsExact(t *testing.T) {
	_, err := ParseStatus("ready")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrderStatus)
	s, err := ParseStatus("Ready")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, s)

	_, err = ParsePaymentStatus("paid")
	assert.Error(t, err)
}

func TestFromDocumentRejectsUnknownEnums(t *testing.T) {
	doc := docstore.Document{
		Path: docstore.MustJoin("shops", "S1", "orders", "O1"),
		Data: docstore.Fields{
			"customerName":  "A",
			"orderType":     "pickup",
			"paymentStatus": "Refunded",
			"status":        "Placed",
			"items":         []any{map[string]any{"name": "Vada", "price": int64(20), "qty": int64(1)}},
			"totalAmount":   int64(20),
		},
	}
	_, err := FromDocument(doc)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)

	doc.Data["paymentStatus"] = "Paid"
	o, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "S1", o.ShopID)
	assert.Equal(t, "O1", o.ID)
	assert.True(t, o.Paid())
}

func TestParsePath(t *testing.T) {
	shopID, orderID, ok := ParsePath("shops/S1/orders/O1")
	require.True(t, ok)
	assert.Equal(t, "S1", shopID)
	assert.Equal(t, "O1", orderID)

	_, _, ok = ParsePath("shops/S1/menu/M1")
	assert.False(t, ok)

	_, err := Path("S/1", "O1")
	assert.ErrorIs(t, err, apperr.ErrInvalidIdentifier)
}
