// Package memory is an in-process docstore.Store used for local development
// and tests. It keeps last-write-wins semantics per document and delivers
// changes to watchers in write order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

type record struct {
	data      docstore.Fields
	createdAt time.Time
	updatedAt time.Time
}

type Store struct {
	mu       sync.Mutex
	docs     map[docstore.Path]*record
	watchers map[*watcher]struct{}
	now      func() time.Time
	closed   bool
}

func New() *Store {
	return &Store{
		docs:     make(map[docstore.Path]*record),
		watchers: make(map[*watcher]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the commit clock; tests use it for stable timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) Get(_ context.Context, path docstore.Path) (docstore.Document, error) {
	if !path.IsDocument() {
		return docstore.Document{}, fmt.Errorf("get %s: not a document path", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[path]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return rec.snapshot(path), nil
}

func (s *Store) List(_ context.Context, collection docstore.Path) ([]docstore.Document, error) {
	if collection.IsDocument() {
		return nil, fmt.Errorf("list %s: not a collection path", collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []docstore.Document
	for p, rec := range s.docs {
		if p.Parent() == collection {
			out = append(out, rec.snapshot(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) Commit(_ context.Context, writes ...docstore.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store closed")
	}

	// Validate the whole batch before touching anything so it applies
	// atomically.
	pending := make(map[docstore.Path]bool)
	for _, w := range writes {
		if !w.Path.IsDocument() {
			return fmt.Errorf("write %s: not a document path", w.Path)
		}
		_, exists := s.docs[w.Path]
		exists = exists || pending[w.Path]
		switch w.Kind {
		case docstore.WriteCreate:
			if exists {
				return docstore.ErrAlreadyExists
			}
		case docstore.WriteUpdate:
			if !exists {
				return docstore.ErrNotFound
			}
		case docstore.WriteMerge, docstore.WriteIncrement:
		default:
			return fmt.Errorf("write %s: unknown kind %d", w.Path, w.Kind)
		}
		pending[w.Path] = true
	}

	now := s.now()
	var changes []docstore.Change
	for _, w := range writes {
		if c, ok := s.apply(w, now); ok {
			changes = append(changes, c)
		}
	}
	s.publish(changes)
	return nil
}

func (s *Store) Mutate(_ context.Context, path docstore.Path, fn docstore.MutateFunc) (bool, error) {
	if !path.IsDocument() {
		return false, fmt.Errorf("mutate %s: not a document path", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current docstore.Document
	rec, exists := s.docs[path]
	if exists {
		current = rec.snapshot(path)
	} else {
		current = docstore.Document{Path: path}
	}
	patch, err := fn(current, exists)
	if err != nil {
		return false, err
	}
	if patch == nil {
		return false, nil
	}
	if c, ok := s.apply(docstore.Merge(path, patch), s.now()); ok {
		s.publish([]docstore.Change{c})
	}
	return true, nil
}

func (s *Store) Watch(ctx context.Context, pattern docstore.Path, fn docstore.WatchFunc) error {
	w := newWatcher(pattern)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("memory store closed")
	}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers, w)
		s.mu.Unlock()
	}()
	return w.run(ctx, fn)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// apply must be called with s.mu held. It reports the resulting change when
// the document content actually changed.
func (s *Store) apply(w docstore.Write, now time.Time) (docstore.Change, bool) {
	rec, exists := s.docs[w.Path]
	var before docstore.Fields
	if exists {
		before = copyFields(rec.data)
	} else {
		rec = &record{data: docstore.Fields{}, createdAt: now}
	}

	switch w.Kind {
	case docstore.WriteCreate:
		rec.data = resolve(w.Data, now)
	case docstore.WriteMerge, docstore.WriteUpdate:
		for k, v := range resolve(w.Data, now) {
			rec.data[k] = v
		}
	case docstore.WriteIncrement:
		for k, v := range resolve(w.Data, now) {
			rec.data[k] = v
		}
		rec.data[w.Field] = toInt64(rec.data[w.Field]) + w.Delta
	}
	rec.updatedAt = now
	s.docs[w.Path] = rec

	if !exists {
		return docstore.Change{Kind: docstore.ChangeAdded, Path: w.Path, After: copyFields(rec.data)}, true
	}
	if equalFields(before, rec.data) {
		return docstore.Change{}, false
	}
	return docstore.Change{Kind: docstore.ChangeModified, Path: w.Path, Before: before, After: copyFields(rec.data)}, true
}

// publish must be called with s.mu held.
func (s *Store) publish(changes []docstore.Change) {
	for _, c := range changes {
		for w := range s.watchers {
			if docstore.MatchCollection(w.pattern, c.Path.Parent()) {
				w.enqueue(c)
			}
		}
	}
}

func (r *record) snapshot(p docstore.Path) docstore.Document {
	return docstore.Document{Path: p, Data: copyFields(r.data), CreatedAt: r.createdAt, UpdatedAt: r.updatedAt}
}

func resolve(in docstore.Fields, now time.Time) docstore.Fields {
	out := make(docstore.Fields, len(in))
	for k, v := range in {
		if docstore.IsServerTimestamp(v) {
			out[k] = now
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
