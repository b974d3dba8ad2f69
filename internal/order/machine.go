package order

import (
	"context"
	"fmt"
	"log"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

// Machine applies payment and fulfillment transitions. Each transition is a
// transactional read-check-write so concurrent callers cannot regress state.
type Machine struct {
	store docstore.Store
}

func NewMachine(store docstore.Store) *Machine {
	return &Machine{store: store}
}

// SetPaymentStatus moves an order's payment status. Marking a Paid order Paid
// again is a no-op; asking for Pending once Paid fails with
// PaymentStatusRegression. It reports whether the document was written.
func (m *Machine) SetPaymentStatus(ctx context.Context, shopID, orderID string, status PaymentStatus, gatewayPaymentID string) (bool, error) {
	if _, err := ParsePaymentStatus(string(status)); err != nil {
		return false, err
	}
	p, err := Path(shopID, orderID)
	if err != nil {
		return false, err
	}
	wrote, err := m.store.Mutate(ctx, p, func(cur docstore.Document, exists bool) (docstore.Fields, error) {
		if !exists {
			return nil, apperr.Wrap(apperr.ErrOrderNotFound, "%s/%s", shopID, orderID)
		}
		o, err := FromDocument(cur)
		if err != nil {
			return nil, err
		}
		switch {
		case o.PaymentStatus == status:
			return nil, nil
		case o.Paid():
			return nil, apperr.Wrap(apperr.ErrPaymentStatusRegression, "%s/%s is already Paid", shopID, orderID)
		}
		patch := docstore.Fields{
			"paymentStatus": string(PaymentPaid),
			"paidAt":        docstore.ServerTimestamp,
			"updatedAt":     docstore.ServerTimestamp,
		}
		if gatewayPaymentID != "" {
			patch["gatewayPaymentId"] = gatewayPaymentID
		}
		return patch, nil
	})
	if err != nil {
		return false, fmt.Errorf("set payment status %s/%s: %w", shopID, orderID, err)
	}
	if wrote {
		log.Printf("[StateMachine] order %s/%s payment -> %s", shopID, orderID, status)
	}
	return wrote, nil
}

// SetOrderStatus moves an order to Preparing, Ready or Completed from any
// non-terminal state. Completed orders reject every further change.
func (m *Machine) SetOrderStatus(ctx context.Context, shopID, orderID string, status Status) (bool, error) {
	switch status {
	case StatusPreparing, StatusReady, StatusCompleted:
	default:
		return false, apperr.Wrap(apperr.ErrInvalidOrderStatus, "%q is not a valid target status", status)
	}
	p, err := Path(shopID, orderID)
	if err != nil {
		return false, err
	}
	wrote, err := m.store.Mutate(ctx, p, func(cur docstore.Document, exists bool) (docstore.Fields, error) {
		if !exists {
			return nil, apperr.Wrap(apperr.ErrOrderNotFound, "%s/%s", shopID, orderID)
		}
		o, err := FromDocument(cur)
		if err != nil {
			return nil, err
		}
		if o.Status.Terminal() {
			return nil, apperr.Wrap(apperr.ErrOrderAlreadyTerminal, "%s/%s is %s", shopID, orderID, o.Status)
		}
		if o.Status == status {
			return nil, nil
		}
		return docstore.Fields{
			"status":    string(status),
			"updatedAt": docstore.ServerTimestamp,
		}, nil
	})
	if err != nil {
		return false, fmt.Errorf("set order status %s/%s: %w", shopID, orderID, err)
	}
	if wrote {
		log.Printf("[StateMachine] order %s/%s status -> %s", shopID, orderID, status)
	}
	return wrote, nil
}
