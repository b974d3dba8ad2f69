package notify

import (
	"bytes"
	"strconv"
	"text/template"
)

const (
	TypeNewOrder    = "NEW_ORDER"
	TypePaymentPaid = "PAYMENT_PAID"

	newOrderTitle = "🛒 New Order Received"
)

var newOrderBody = template.Must(template.New("newOrder").Parse(`₹{{.Amount}} order received`))

// NewOrderMessage is sent when an order arrives already paid.
func NewOrderMessage(shopID, orderID string, amount int64) Message {
	return Message{
		Title: newOrderTitle,
		Body:  render(newOrderBody, map[string]any{"Amount": amount}),
		Data: map[string]string{
			"type":    TypeNewOrder,
			"shopId":  shopID,
			"orderId": orderID,
			"amount":  strconv.FormatInt(amount, 10),
		},
	}
}

// PaymentPaidMessage is data-only; the vendor app renders and announces it.
func PaymentPaidMessage(shopID, orderID string, amount int64, itemsText string) Message {
	return Message{
		Data: map[string]string{
			"type":      TypePaymentPaid,
			"shopId":    shopID,
			"orderId":   orderID,
			"amount":    strconv.FormatInt(amount, 10),
			"itemsText": itemsText,
		},
	}
}

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}
