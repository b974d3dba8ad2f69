package api

import (
	"net/http"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
)

// POST /api/shops/{shopId}/orders
func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	shopID := r.PathValue("shopId")
	var req order.NewOrder
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.ErrInvalidOrder, "invalid JSON body"))
		return
	}
	if err := h.Shops.EnsureAccepting(r.Context(), shopID); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.Orders.Create(r.Context(), shopID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// GET /api/shops/{shopId}/orders/{orderId}
func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), r.PathValue("shopId"), r.PathValue("orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// GET /api/shops/{shopId}/orders
func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.List(r.Context(), r.PathValue("shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// POST /api/shops/{shopId}/orders/{orderId}/status
func (h *handlers) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	shopID, orderID := r.PathValue("shopId"), r.PathValue("orderId")
	var req order.SetStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.ErrInvalidOrderStatus, "invalid JSON body"))
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	changed, err := h.Machine.SetOrderStatus(r.Context(), shopID, orderID, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order.SetStatusResponse{ShopID: shopID, OrderID: orderID, Status: status, Changed: changed})
}
