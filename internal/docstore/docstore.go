// Package docstore defines the hierarchical document store the ordering
// platform persists into. Backends live under internal/storage.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
)

// Fields is the field map of one document.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp may be used as a field value; the backend replaces it with
// its commit time.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Document is a snapshot of one stored document.
type Document struct {
	Path      Path
	Data      Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d Document) ID() string { return d.Path.ID() }

type WriteKind int

const (
	WriteCreate WriteKind = iota + 1
	WriteMerge
	WriteUpdate
	WriteIncrement
)

// Write is one operation of an atomic Commit.
type Write struct {
	Kind  WriteKind
	Path  Path
	Data  Fields
	Field string
	Delta int64
}

// Create writes a new document and fails the batch with ErrAlreadyExists if
// it is already present.
func Create(p Path, data Fields) Write { return Write{Kind: WriteCreate, Path: p, Data: data} }

// Merge overwrites only the given fields, creating the document if needed.
func Merge(p Path, data Fields) Write { return Write{Kind: WriteMerge, Path: p, Data: data} }

// Update is Merge that fails the batch with ErrNotFound when the document is
// missing.
func Update(p Path, data Fields) Write { return Write{Kind: WriteUpdate, Path: p, Data: data} }

// Increment adds delta to a numeric field using the backend's atomic
// increment, merging extra into the same document.
func Increment(p Path, field string, delta int64, extra Fields) Write {
	return Write{Kind: WriteIncrement, Path: p, Field: field, Delta: delta, Data: extra}
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change describes one document change. Before is nil for additions and After
// is nil for removals.
type Change struct {
	Kind   ChangeKind
	Path   Path
	Before Fields
	After  Fields
}

// MutateFunc inspects the current state of a document and returns the fields
// to merge into it, or nil to leave it untouched.
type MutateFunc func(current Document, exists bool) (Fields, error)

// WatchFunc receives changes in per-document order. Returning an error does
// not stop the watch; backends log it.
type WatchFunc func(ctx context.Context, change Change) error

type Store interface {
	Get(ctx context.Context, path Path) (Document, error)
	List(ctx context.Context, collection Path) ([]Document, error)
	Commit(ctx context.Context, writes ...Write) error
	// Mutate runs fn and its write in one transaction. It reports whether a
	// write happened.
	Mutate(ctx context.Context, path Path, fn MutateFunc) (bool, error)
	// Watch blocks until ctx is done, delivering changes under every
	// collection matching pattern that happen after the call.
	Watch(ctx context.Context, pattern Path, fn WatchFunc) error
	Close() error
}
