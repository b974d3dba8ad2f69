// Package changefeed fans order document changes out to their consumers:
// the in-process dispatcher, or the Kafka change topic that feeds the
// dispatch worker.
package changefeed

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
)

type Handler interface {
	HandleChange(ctx context.Context, c docstore.Change) error
}

type HandlerFunc func(ctx context.Context, c docstore.Change) error

func (f HandlerFunc) HandleChange(ctx context.Context, c docstore.Change) error { return f(ctx, c) }

type Relay struct {
	store    docstore.Store
	pattern  docstore.Path
	handlers []Handler
	logger   *log.Logger

	retryBase time.Duration
	retryMax  time.Duration
}

// NewRelay watches every shop's orders collection.
func NewRelay(store docstore.Store, logger *log.Logger, handlers ...Handler) *Relay {
	if logger == nil {
		logger = log.Default()
	}
	return &Relay{
		store:     store,
		pattern:   order.WatchPattern,
		handlers:  handlers,
		logger:    logger,
		retryBase: time.Second,
		retryMax:  30 * time.Second,
	}
}

// Run blocks until ctx is done. Every handler sees every change, even when an
// earlier one fails.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Printf("[Relay] watching %s (%d handlers)", r.pattern, len(r.handlers))
	err := r.store.Watch(ctx, r.pattern, r.deliver)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// deliver hands c to every handler, then retries the ones that failed with
// backoff until they succeed or ctx is done. Watch backends do not redeliver,
// so handlers must be idempotent.
func (r *Relay) deliver(ctx context.Context, c docstore.Change) error {
	var failed []Handler
	for _, h := range r.handlers {
		if err := h.HandleChange(ctx, c); err != nil {
			r.logger.Printf("[Relay] %s %s: %v", c.Kind, c.Path, err)
			failed = append(failed, h)
		}
	}
	for attempt := 1; len(failed) > 0; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
		remaining := failed[:0]
		for _, h := range failed {
			if err := h.HandleChange(ctx, c); err != nil {
				r.logger.Printf("[Relay] retry %d %s %s: %v", attempt, c.Kind, c.Path, err)
				remaining = append(remaining, h)
			}
		}
		failed = remaining
	}
	return nil
}

func (r *Relay) backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * r.retryBase
	if d > r.retryMax {
		d = r.retryMax
	}
	return d
}
