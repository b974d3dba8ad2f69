package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// OrderRequest asks the gateway for a payment intent. Amount is in minor
// currency units (paise for INR).
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
}

// GatewayOrder is the gateway's intent record.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Gateway creates remote payment intents.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
}

// Sandbox is an in-process gateway for local runs and tests. Intent ids look
// like the hosted gateway's ("order_" + 14 characters).
type Sandbox struct{}

func (Sandbox) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return GatewayOrder{ID: "order_" + id, Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
