package payment

import (
	"context"
	"log"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
)

// Callback is the gateway's signed payment notification.
type Callback struct {
	IntentID  string
	PaymentID string
	Signature string
}

type CallbackResult struct {
	ShopID         string
	OrderID        string
	RedirectTarget string
	// Applied is false when the order was already Paid (a replay).
	Applied bool
}

// CallbackVerifier authenticates gateway callbacks and is the only caller
// that marks orders Paid.
type CallbackVerifier struct {
	store        docstore.Store
	machine      *order.Machine
	secret       string
	redirectBase string
}

func NewCallbackVerifier(store docstore.Store, machine *order.Machine, secret, redirectBase string) *CallbackVerifier {
	return &CallbackVerifier{
		store:        store,
		machine:      machine,
		secret:       secret,
		redirectBase: strings.TrimRight(redirectBase, "/"),
	}
}

func (v *CallbackVerifier) HandleCallback(ctx context.Context, cb Callback) (CallbackResult, error) {
	ctx, span := tracer.Start(ctx, "payment.HandleCallback")
	defer span.End()
	span.SetAttributes(attribute.String("intent.id", cb.IntentID), attribute.String("payment.id", cb.PaymentID))

	res, err := v.handle(ctx, cb)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.CodeOf(err, "ServerError"))
		return CallbackResult{}, err
	}
	span.SetAttributes(attribute.Bool("payment.applied", res.Applied))
	return res, nil
}

func (v *CallbackVerifier) handle(ctx context.Context, cb Callback) (CallbackResult, error) {
	cb.IntentID = strings.TrimSpace(cb.IntentID)
	cb.PaymentID = strings.TrimSpace(cb.PaymentID)
	cb.Signature = strings.TrimSpace(cb.Signature)
	if cb.IntentID == "" || cb.PaymentID == "" || cb.Signature == "" {
		return CallbackResult{}, apperr.Wrap(apperr.ErrInvalidCallbackPayload, "intent, payment and signature are required")
	}

	// Nothing is read from the store before the signature checks out.
	if v.secret == "" || !VerifySignature(v.secret, cb.IntentID, cb.PaymentID, cb.Signature) {
		log.Printf("[Callback] SECURITY: signature mismatch intent=%s payment=%s", cb.IntentID, cb.PaymentID)
		return CallbackResult{}, apperr.Wrap(apperr.ErrSignatureMismatch, "intent %s", cb.IntentID)
	}

	m, err := lookupMapping(ctx, v.store, cb.IntentID)
	if err != nil {
		log.Printf("[Callback] mapping lookup failed intent=%s: %v", cb.IntentID, err)
		return CallbackResult{}, err
	}

	applied, err := v.machine.SetPaymentStatus(ctx, m.ShopID, m.OrderID, order.PaymentPaid, cb.PaymentID)
	if err != nil {
		return CallbackResult{}, err
	}
	if applied {
		log.Printf("[Callback] order %s/%s marked Paid (payment %s)", m.ShopID, m.OrderID, cb.PaymentID)
	} else {
		log.Printf("[Callback] replay for paid order %s/%s (payment %s)", m.ShopID, m.OrderID, cb.PaymentID)
	}
	return CallbackResult{
		ShopID:         m.ShopID,
		OrderID:        m.OrderID,
		RedirectTarget: v.redirectBase + "/" + url.PathEscape(m.ShopID) + "/" + url.PathEscape(m.OrderID),
		Applied:        applied,
	}, nil
}
