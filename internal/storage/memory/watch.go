package memory

import (
	"context"
	"log"
	"sync"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

// watcher buffers changes without bound so that writers holding the store
// lock never wait on a slow consumer.
type watcher struct {
	pattern docstore.Path

	mu     sync.Mutex
	queue  []docstore.Change
	signal chan struct{}
}

func newWatcher(pattern docstore.Path) *watcher {
	return &watcher{pattern: pattern, signal: make(chan struct{}, 1)}
}

func (w *watcher) enqueue(c docstore.Change) {
	w.mu.Lock()
	w.queue = append(w.queue, c)
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) drain() []docstore.Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.queue
	w.queue = nil
	return out
}

func (w *watcher) run(ctx context.Context, fn docstore.WatchFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.signal:
		}
		for _, c := range w.drain() {
			if ctx.Err() != nil {
				return nil
			}
			if err := fn(ctx, c); err != nil {
				log.Printf("[memstore] watch handler error path=%s: %v", c.Path, err)
			}
		}
	}
}
