package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/authz"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
)

type registerShopRequest struct {
	ShopID string `json:"shopId"`
	Name   string `json:"name"`
}

// POST /api/shops registers a shop owned by the caller.
func (h *handlers) registerShop(w http.ResponseWriter, r *http.Request) {
	uid, ok := strings.CutPrefix(authz.PrincipalFromRequest(r), "user:")
	if !ok || uid == "" || uid == "anonymous" {
		h.writeError(w, r, apperr.ErrUnauthenticated)
		return
	}
	var req registerShopRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.ErrInvalidIdentifier, "invalid JSON body"))
		return
	}
	if req.ShopID == "" {
		req.ShopID = uuid.NewString()
	}
	s, err := h.Shops.Register(r.Context(), req.ShopID, req.Name, uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Logger.Printf("[API] shop %s registered by %s", s.ID, uid)
	writeJSON(w, http.StatusCreated, s)
}

type deviceRequest struct {
	Platform string `json:"platform"`
}

// PUT /api/shops/{shopId}/devices/{token}
func (h *handlers) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, r, apperr.Wrap(apperr.ErrInvalidIdentifier, "invalid JSON body"))
			return
		}
	}
	if err := h.Shops.RegisterDevice(r.Context(), r.PathValue("shopId"), r.PathValue("token"), req.Platform); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PATCH /api/admin/shops/{shopId}
func (h *handlers) adminUpdateShop(w http.ResponseWriter, r *http.Request) {
	var req shop.Settings
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.ErrInvalidIdentifier, "invalid JSON body"))
		return
	}
	s, err := h.Shops.UpdateSettings(r.Context(), r.PathValue("shopId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
