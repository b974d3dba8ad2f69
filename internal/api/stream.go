package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
)

const keepAliveInterval = 25 * time.Second

// GET /api/shops/{shopId}/orders/stream is the vendor dashboard feed.
func (h *handlers) shopOrderStream(w http.ResponseWriter, r *http.Request) {
	shopID := r.PathValue("shopId")
	h.stream(w, r, shopID, "", func(ctx context.Context) ([]order.Order, error) {
		return h.Orders.List(ctx, shopID)
	})
}

// GET /api/shops/{shopId}/orders/{orderId}/stream is the customer's
// order-tracking feed.
func (h *handlers) orderStream(w http.ResponseWriter, r *http.Request) {
	shopID, orderID := r.PathValue("shopId"), r.PathValue("orderId")
	if _, err := h.Orders.Get(r.Context(), shopID, orderID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stream(w, r, shopID, orderID, func(ctx context.Context) ([]order.Order, error) {
		o, err := h.Orders.Get(ctx, shopID, orderID)
		if err != nil {
			return nil, err
		}
		return []order.Order{o}, nil
	})
}

// stream writes server-sent events: the current orders as "added", then
// every change. Subscribers key on order id, so an order that changes while
// the snapshot is written may arrive twice.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request, shopID, orderID string, snapshot func(context.Context) ([]order.Order, error)) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	rc := http.NewResponseController(w)

	events := make(chan order.Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- h.Orders.Subscribe(ctx, shopID, orderID, func(ctx context.Context, evt order.Event) error {
			select {
			case events <- evt:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	initial, err := snapshot(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	for _, o := range initial {
		if err := writeEvent(w, order.Event{Type: order.EventAdded, Order: o}); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		h.Logger.Printf("[Stream] flush unsupported: %v", err)
		return
	}

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				h.Logger.Printf("[Stream] shop %s subscription ended: %v", shopID, err)
			}
			return
		case evt := <-events:
			if err := writeEvent(w, evt); err != nil {
				return
			}
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, evt order.Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, b)
	return err
}
