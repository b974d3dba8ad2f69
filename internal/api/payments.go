package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payment"
)

type intentRequest struct {
	AmountMinorUnits json.Number `json:"amountMinorUnits"`
	ShopID           string      `json:"shopId"`
	OrderID          string      `json:"orderId"`
}

// POST /api/payments/intents
func (h *handlers) createIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": apperr.ErrInvalidAmount.Code})
		return
	}
	amount, err := req.AmountMinorUnits.Int64()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": apperr.ErrInvalidAmount.Code})
		return
	}

	intent, err := h.Intents.CreateIntent(r.Context(), req.ShopID, req.OrderID, amount)
	if err != nil {
		status, code := intentFailure(err)
		if status == http.StatusInternalServerError {
			h.Logger.Printf("[API] create intent shop=%s order=%s: %v", req.ShopID, req.OrderID, err)
		}
		writeJSON(w, status, map[string]string{"error": code})
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// intentFailure keeps the checkout page's contract: gateway and internal
// failures all read as OrderCreationFailed.
func intentFailure(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest, apperr.CodeOf(err, apperr.ErrInvalidAmount.Code)
	case apperr.KindNotFound:
		return http.StatusNotFound, apperr.CodeOf(err, "")
	case apperr.KindForbidden:
		return http.StatusForbidden, apperr.CodeOf(err, "")
	case apperr.KindConflict:
		return http.StatusConflict, apperr.CodeOf(err, "")
	default:
		return http.StatusInternalServerError, "OrderCreationFailed"
	}
}

type callbackRequest struct {
	IntentID  string `json:"intentId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`

	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (c callbackRequest) callback() payment.Callback {
	return payment.Callback{
		IntentID:  firstNonEmpty(c.IntentID, c.RazorpayOrderID),
		PaymentID: firstNonEmpty(c.PaymentID, c.RazorpayPaymentID),
		Signature: firstNonEmpty(c.Signature, c.RazorpaySignature),
	}
}

// POST /api/payments/callback accepts the checkout handler's JSON or the
// gateway's form post.
func (h *handlers) paymentCallback(w http.ResponseWriter, r *http.Request) {
	req, ok := parseCallback(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": apperr.ErrInvalidCallbackPayload.Code})
		return
	}

	res, err := h.Callbacks.HandleCallback(r.Context(), req.callback())
	if err != nil {
		status, code := callbackFailure(err)
		if status == http.StatusInternalServerError {
			h.Logger.Printf("[API] callback: %v", err)
		}
		writeJSON(w, status, map[string]any{"success": false, "error": code})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"redirectTarget": res.RedirectTarget,
		"shopId":         res.ShopID,
		"orderId":        res.OrderID,
	})
}

func parseCallback(r *http.Request) (callbackRequest, bool) {
	var req callbackRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(1 << 20)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return req, false
		}
		req = callbackRequest{
			IntentID:          r.PostForm.Get("intentId"),
			PaymentID:         r.PostForm.Get("paymentId"),
			Signature:         r.PostForm.Get("signature"),
			RazorpayOrderID:   r.PostForm.Get("razorpay_order_id"),
			RazorpayPaymentID: r.PostForm.Get("razorpay_payment_id"),
			RazorpaySignature: r.PostForm.Get("razorpay_signature"),
		}
		return req, true
	default:
		return req, decodeJSON(r, &req) == nil
	}
}

func callbackFailure(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput, apperr.KindAuthentication:
		return http.StatusBadRequest, apperr.CodeOf(err, "")
	case apperr.KindNotFound:
		return http.StatusNotFound, apperr.CodeOf(err, "")
	default:
		return http.StatusInternalServerError, "ServerError"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
