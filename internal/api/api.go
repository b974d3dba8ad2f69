// Package api is the HTTP surface of the ordering platform: checkout and
// payment endpoints for customers, and order, device and admin endpoints for
// vendors.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/authz"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payment"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
)

// Deps are the components the handlers call into.
type Deps struct {
	Orders    *order.Repository
	Machine   *order.Machine
	Shops     *shop.Directory
	Intents   *payment.IntentMapper
	Callbacks *payment.CallbackVerifier

	Authz           authz.Client
	TokenVerifier   authz.TokenVerifier
	AllowDevHeaders bool
	Logger          *log.Logger
}

type handlers struct {
	Deps
}

// NewHandler mounts every route on a fresh mux.
func NewHandler(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Authz == nil {
		d.Authz = &authz.NoopClient{}
	}
	h := &handlers{Deps: d}
	mux := http.NewServeMux()

	staff := authz.Require(d.Authz, func(r *http.Request) (string, string) {
		return authz.ShopObject(r.PathValue("shopId")), authz.RelationStaff
	})
	admin := authz.Require(d.Authz, func(*http.Request) (string, string) {
		return authz.AdminObject, authz.RelationAdmin
	})

	route := func(pattern, name string, fn http.HandlerFunc, guards ...func(http.Handler) http.Handler) {
		var handler http.Handler = fn
		for _, g := range guards {
			handler = g(handler)
		}
		mux.Handle(pattern, otelhttp.NewHandler(handler, name))
	}

	// Customer facing.
	route("POST /api/payments/intents", "create-intent", h.createIntent)
	route("POST /api/payments/callback", "payment-callback", h.paymentCallback)
	route("POST /api/shops/{shopId}/orders", "create-order", h.createOrder)
	route("GET /api/shops/{shopId}/orders/{orderId}", "get-order", h.getOrder)
	route("GET /api/shops/{shopId}/orders/{orderId}/stream", "order-stream", h.orderStream)

	// Vendor facing.
	route("POST /api/shops", "register-shop", h.registerShop)
	route("GET /api/shops/{shopId}/orders", "list-orders", h.listOrders, staff)
	route("GET /api/shops/{shopId}/orders/stream", "shop-order-stream", h.shopOrderStream, staff)
	route("POST /api/shops/{shopId}/orders/{orderId}/status", "set-order-status", h.setOrderStatus, staff)
	route("PUT /api/shops/{shopId}/devices/{token}", "register-device", h.registerDevice, staff)
	route("PATCH /api/admin/shops/{shopId}", "admin-update-shop", h.adminUpdateShop, admin)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withCORS(authz.Authenticate(d.TokenVerifier, d.AllowDevHeaders)(mux))
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simple permissive CORS; the ordering and vendor apps are served elsewhere.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps the error taxonomy onto vendor-facing HTTP statuses.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Printf("[API] %s %s trace=%s: %v", r.Method, r.URL.Path, traceID(r), err)
	}
	writeJSON(w, status, map[string]string{"error": apperr.CodeOf(err, "InternalError")})
}

func traceID(r *http.Request) string {
	sc := trace.SpanContextFromContext(r.Context())
	if !sc.HasTraceID() {
		return "-"
	}
	return sc.TraceID().String()
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}
