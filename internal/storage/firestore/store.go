// Package firestore backs the document store with Cloud Firestore, the
// platform the ordering apps were first built on.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

type Store struct {
	client *firestore.Client
}

func New(client *firestore.Client) *Store { return &Store{client: client} }

func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return New(client), nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Get(ctx context.Context, path docstore.Path) (docstore.Document, error) {
	if !path.IsDocument() {
		return docstore.Document{}, fmt.Errorf("get %s: not a document path", path)
	}
	snap, err := s.client.Doc(string(path)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	return toDocument(path, snap), nil
}

func (s *Store) List(ctx context.Context, collection docstore.Path) ([]docstore.Document, error) {
	if collection.IsDocument() {
		return nil, fmt.Errorf("list %s: not a collection path", collection)
	}
	snaps, err := s.client.Collection(string(collection)).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toDocument(relativePath(snap.Ref.Path), snap))
	}
	return out, nil
}

func (s *Store) Commit(ctx context.Context, writes ...docstore.Write) error {
	for _, w := range writes {
		if !w.Path.IsDocument() {
			return fmt.Errorf("write %s: not a document path", w.Path)
		}
	}
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			if err := stage(tx, s.client.Doc(string(w.Path)), w); err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err)
}

func stage(tx *firestore.Transaction, ref *firestore.DocumentRef, w docstore.Write) error {
	switch w.Kind {
	case docstore.WriteCreate:
		return tx.Create(ref, toNative(w.Data))
	case docstore.WriteMerge:
		return tx.Set(ref, toNative(w.Data), firestore.MergeAll)
	case docstore.WriteUpdate:
		updates := make([]firestore.Update, 0, len(w.Data))
		for k, v := range toNative(w.Data) {
			updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
		}
		return tx.Update(ref, updates)
	case docstore.WriteIncrement:
		data := toNative(w.Data)
		data[w.Field] = firestore.Increment(w.Delta)
		return tx.Set(ref, data, firestore.MergeAll)
	default:
		return fmt.Errorf("write %s: unknown kind %d", w.Path, w.Kind)
	}
}

func (s *Store) Mutate(ctx context.Context, path docstore.Path, fn docstore.MutateFunc) (bool, error) {
	if !path.IsDocument() {
		return false, fmt.Errorf("mutate %s: not a document path", path)
	}
	ref := s.client.Doc(string(path))
	var wrote bool
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		wrote = false
		snap, err := tx.Get(ref)
		exists := true
		if status.Code(err) == codes.NotFound {
			exists = false
		} else if err != nil {
			return err
		}
		current := docstore.Document{Path: path}
		if exists {
			current = toDocument(path, snap)
		}
		patch, err := fn(current, exists)
		if err != nil || patch == nil {
			return err
		}
		wrote = true
		return tx.Set(ref, toNative(patch), firestore.MergeAll)
	})
	if err != nil {
		return false, translate(err)
	}
	return wrote, nil
}

// Watch listens to the collection, or to the collection group when the
// pattern has wildcards. The first snapshot only seeds the before-image
// cache; changes are delivered from the second one on.
func (s *Store) Watch(ctx context.Context, pattern docstore.Path, fn docstore.WatchFunc) error {
	var it *firestore.QuerySnapshotIterator
	if strings.Contains(string(pattern), "*") {
		it = s.client.CollectionGroup(pattern.ID()).Snapshots(ctx)
	} else {
		it = s.client.Collection(string(pattern)).Snapshots(ctx)
	}
	defer it.Stop()

	seen := make(map[docstore.Path]docstore.Fields)
	first := true
	for {
		snap, err := it.Next()
		if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("watch %s: %w", pattern, err)
		}
		for _, dc := range snap.Changes {
			p := relativePath(dc.Doc.Ref.Path)
			if !docstore.MatchCollection(pattern, p.Parent()) {
				continue
			}
			c := docstore.Change{Path: p, Before: seen[p]}
			switch dc.Kind {
			case firestore.DocumentAdded:
				c.Kind, c.After = docstore.ChangeAdded, dc.Doc.Data()
			case firestore.DocumentModified:
				c.Kind, c.After = docstore.ChangeModified, dc.Doc.Data()
			case firestore.DocumentRemoved:
				c.Kind = docstore.ChangeRemoved
			}
			if c.Kind == docstore.ChangeRemoved {
				delete(seen, p)
			} else {
				seen[p] = c.After
			}
			if first {
				continue
			}
			if c.Kind == docstore.ChangeAdded {
				c.Before = nil
			}
			if err := fn(ctx, c); err != nil {
				log.Printf("[firestore] watch handler error path=%s: %v", p, err)
			}
		}
		first = false
	}
}

func toDocument(path docstore.Path, snap *firestore.DocumentSnapshot) docstore.Document {
	return docstore.Document{
		Path:      path,
		Data:      snap.Data(),
		CreatedAt: snap.CreateTime,
		UpdatedAt: snap.UpdateTime,
	}
}

// toNative swaps the ServerTimestamp sentinel for Firestore's own.
func toNative(in docstore.Fields) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if docstore.IsServerTimestamp(v) {
			v = firestore.ServerTimestamp
		}
		out[k] = v
	}
	return out
}

// relativePath strips "projects/{p}/databases/{d}/documents/" from a
// fully-qualified resource name.
func relativePath(full string) docstore.Path {
	const marker = "/documents/"
	if i := strings.Index(full, marker); i >= 0 {
		return docstore.Path(full[i+len(marker):])
	}
	return docstore.Path(full)
}

func translate(err error) error {
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	case codes.NotFound:
		return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	}
	return err
}
