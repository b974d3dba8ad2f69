package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

const mappingsCollection = "paymentIntentMappings"

// Mapping links a gateway intent to the order it pays for. It is write-once.
type Mapping struct {
	IntentID  string    `doc:"-" json:"intentId"`
	ShopID    string    `doc:"shopId" json:"shopId"`
	OrderID   string    `doc:"orderId" json:"orderId"`
	Amount    int64     `doc:"amount" json:"amount"`
	Currency  string    `doc:"currency" json:"currency"`
	CreatedAt time.Time `doc:"createdAt" json:"createdAt"`
}

func MappingPath(intentID string) (docstore.Path, error) {
	p, err := docstore.Join(mappingsCollection, intentID)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidIdentifier, "intent %q", intentID)
	}
	return p, nil
}

func createMapping(ctx context.Context, store docstore.Store, m Mapping) error {
	p, err := MappingPath(m.IntentID)
	if err != nil {
		return err
	}
	err = store.Commit(ctx, docstore.Create(p, docstore.Fields{
		"shopId":    m.ShopID,
		"orderId":   m.OrderID,
		"amount":    m.Amount,
		"currency":  m.Currency,
		"createdAt": docstore.ServerTimestamp,
	}))
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return apperr.Wrap(apperr.ErrMappingExists, "intent %s", m.IntentID)
	}
	if err != nil {
		return fmt.Errorf("write mapping %s: %w", m.IntentID, err)
	}
	return nil
}

func lookupMapping(ctx context.Context, store docstore.Store, intentID string) (Mapping, error) {
	p, err := MappingPath(intentID)
	if err != nil {
		return Mapping{}, err
	}
	doc, err := store.Get(ctx, p)
	if errors.Is(err, docstore.ErrNotFound) {
		return Mapping{}, apperr.Wrap(apperr.ErrMappingMissing, "intent %s", intentID)
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("read mapping %s: %w", intentID, err)
	}
	var m Mapping
	if err := docstore.Decode(doc.Data, &m); err != nil {
		return Mapping{}, apperr.Wrap(apperr.ErrInvalidDocument, "mapping %s: %v", intentID, err)
	}
	if m.ShopID == "" || m.OrderID == "" {
		return Mapping{}, apperr.Wrap(apperr.ErrInvalidDocument, "mapping %s has no target", intentID)
	}
	m.IntentID = intentID
	return m, nil
}
