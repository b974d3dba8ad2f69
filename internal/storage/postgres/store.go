// Package postgres stores documents as JSONB rows. Every write also appends
// to document_changes, whose insert trigger wakes watchers via NOTIFY.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

const (
	changesChannel = "document_changes"

	// changeLogLock serializes the tail of every commit so change ids become
	// visible in id order.
	changeLogLock = 0x646f6373
)

type Store struct {
	DB  *sql.DB
	dsn string
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Get(ctx context.Context, path docstore.Path) (docstore.Document, error) {
	if !path.IsDocument() {
		return docstore.Document{}, fmt.Errorf("get %s: not a document path", path)
	}
	row := s.DB.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM documents WHERE path = $1`, string(path))
	doc, err := scanDocument(path, row)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	return doc, nil
}

func (s *Store) List(ctx context.Context, collection docstore.Path) ([]docstore.Document, error) {
	if collection.IsDocument() {
		return nil, fmt.Errorf("list %s: not a collection path", collection)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT path, data, created_at, updated_at FROM documents WHERE parent = $1 ORDER BY path`,
		string(collection))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var (
			path string
			raw  []byte
			doc  docstore.Document
		)
		if err := rows.Scan(&path, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		doc.Path = docstore.Path(path)
		if doc.Data, err = decodeFields(raw); err != nil {
			return nil, fmt.Errorf("list %s: %s: %w", collection, path, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) Commit(ctx context.Context, writes ...docstore.Write) error {
	paths := make([]docstore.Path, 0, len(writes))
	for _, w := range writes {
		if !w.Path.IsDocument() {
			return fmt.Errorf("write %s: not a document path", w.Path)
		}
		paths = append(paths, w.Path)
	}
	return s.inTx(ctx, paths, func(tx *sql.Tx, now time.Time) ([]docstore.Change, error) {
		var changes []docstore.Change
		for _, w := range writes {
			c, ok, err := applyWrite(ctx, tx, w, now)
			if err != nil {
				return nil, err
			}
			if ok {
				changes = append(changes, c)
			}
		}
		return changes, nil
	})
}

func (s *Store) Mutate(ctx context.Context, path docstore.Path, fn docstore.MutateFunc) (bool, error) {
	if !path.IsDocument() {
		return false, fmt.Errorf("mutate %s: not a document path", path)
	}
	wrote := false
	err := s.inTx(ctx, []docstore.Path{path}, func(tx *sql.Tx, now time.Time) ([]docstore.Change, error) {
		current, exists, err := load(ctx, tx, path)
		if err != nil {
			return nil, err
		}
		if !exists {
			current = docstore.Document{Path: path}
		}
		patch, err := fn(current, exists)
		if err != nil || patch == nil {
			return nil, err
		}
		wrote = true
		c, ok, err := applyWrite(ctx, tx, docstore.Merge(path, patch), now)
		if err != nil || !ok {
			return nil, err
		}
		return []docstore.Change{c}, nil
	})
	if err != nil {
		return false, err
	}
	return wrote, nil
}

// inTx locks every path for the length of the transaction, runs fn and
// appends the resulting changes to the change log.
func (s *Store) inTx(ctx context.Context, paths []docstore.Path, fn func(*sql.Tx, time.Time) ([]docstore.Change, error)) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Sorted so concurrent batches over the same paths cannot deadlock.
	sorted := append([]docstore.Path(nil), paths...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var prev docstore.Path
	for i, p := range sorted {
		if i > 0 && p == prev {
			continue
		}
		prev = p
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(p)); err != nil {
			return fmt.Errorf("lock %s: %w", p, err)
		}
	}

	var now time.Time
	if err := tx.QueryRowContext(ctx, `SELECT now()`).Scan(&now); err != nil {
		return fmt.Errorf("read clock: %w", err)
	}
	changes, err := fn(tx, now.UTC())
	if err != nil {
		return err
	}
	if len(changes) > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, changeLogLock); err != nil {
			return fmt.Errorf("lock change log: %w", err)
		}
		for _, c := range changes {
			if err := appendChange(ctx, tx, c); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func load(ctx context.Context, tx *sql.Tx, path docstore.Path) (docstore.Document, bool, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM documents WHERE path = $1`, string(path))
	doc, err := scanDocument(path, row)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("load %s: %w", path, err)
	}
	return doc, true, nil
}

func applyWrite(ctx context.Context, tx *sql.Tx, w docstore.Write, now time.Time) (docstore.Change, bool, error) {
	current, exists, err := load(ctx, tx, w.Path)
	if err != nil {
		return docstore.Change{}, false, err
	}
	switch w.Kind {
	case docstore.WriteCreate:
		if exists {
			return docstore.Change{}, false, docstore.ErrAlreadyExists
		}
	case docstore.WriteUpdate:
		if !exists {
			return docstore.Change{}, false, docstore.ErrNotFound
		}
	case docstore.WriteMerge, docstore.WriteIncrement:
	default:
		return docstore.Change{}, false, fmt.Errorf("write %s: unknown kind %d", w.Path, w.Kind)
	}

	next := docstore.Fields{}
	if exists && w.Kind != docstore.WriteCreate {
		for k, v := range current.Data {
			next[k] = v
		}
	}
	for k, v := range w.Data {
		if docstore.IsServerTimestamp(v) {
			v = now
		}
		next[k] = v
	}
	if w.Kind == docstore.WriteIncrement {
		base, err := toInt64(next[w.Field])
		if err != nil {
			return docstore.Change{}, false, fmt.Errorf("increment %s.%s: %w", w.Path, w.Field, err)
		}
		next[w.Field] = base + w.Delta
	}

	after, err := json.Marshal(next)
	if err != nil {
		return docstore.Change{}, false, fmt.Errorf("encode %s: %w", w.Path, err)
	}
	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (path, parent, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
			string(w.Path), string(w.Path.Parent()), string(after), now)
		if isUniqueViolation(err) {
			return docstore.Change{}, false, docstore.ErrAlreadyExists
		}
		if err != nil {
			return docstore.Change{}, false, fmt.Errorf("insert %s: %w", w.Path, err)
		}
		data, err := decodeFields(after)
		if err != nil {
			return docstore.Change{}, false, err
		}
		return docstore.Change{Kind: docstore.ChangeAdded, Path: w.Path, After: data}, true, nil
	}

	before, err := json.Marshal(current.Data)
	if err != nil {
		return docstore.Change{}, false, fmt.Errorf("encode %s: %w", w.Path, err)
	}
	if bytes.Equal(before, after) {
		return docstore.Change{}, false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = $2, updated_at = $3 WHERE path = $1`,
		string(w.Path), string(after), now); err != nil {
		return docstore.Change{}, false, fmt.Errorf("update %s: %w", w.Path, err)
	}
	data, err := decodeFields(after)
	if err != nil {
		return docstore.Change{}, false, err
	}
	return docstore.Change{Kind: docstore.ChangeModified, Path: w.Path, Before: current.Data, After: data}, true, nil
}

func appendChange(ctx context.Context, tx *sql.Tx, c docstore.Change) error {
	before, err := encodeNullable(c.Before)
	if err != nil {
		return err
	}
	after, err := encodeNullable(c.After)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO document_changes (path, parent, kind, before, after) VALUES ($1, $2, $3, $4, $5)`,
		string(c.Path), string(c.Path.Parent()), string(c.Kind), before, after)
	if err != nil {
		return fmt.Errorf("append change %s: %w", c.Path, err)
	}
	return nil
}

// Watch delivers changes committed after the call. A NOTIFY only wakes the
// loop; rows are always read from the change log, so missed notifications
// during a reconnect are caught up on the next wake.
func (s *Store) Watch(ctx context.Context, pattern docstore.Path, fn docstore.WatchFunc) error {
	var last int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM document_changes`).Scan(&last); err != nil {
		return fmt.Errorf("watch %s: %w", pattern, err)
	}

	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[DB] listener event %d: %v", ev, err)
		}
	})
	defer listener.Close()
	if err := listener.Listen(changesChannel); err != nil {
		return fmt.Errorf("listen %s: %w", changesChannel, err)
	}

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-listener.Notify:
		case <-ping.C:
			go func() { _ = listener.Ping() }()
		}
		var err error
		last, err = s.deliver(ctx, pattern, last, fn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[DB] watch %s: %v", pattern, err)
		}
	}
}

func (s *Store) deliver(ctx context.Context, pattern docstore.Path, after int64, fn docstore.WatchFunc) (int64, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, path, parent, kind, before, after FROM document_changes WHERE id > $1 ORDER BY id`, after)
	if err != nil {
		return after, err
	}
	defer rows.Close()

	last := after
	for rows.Next() {
		var (
			id                  int64
			path, parent, kind  string
			beforeRaw, afterRaw []byte
		)
		if err := rows.Scan(&id, &path, &parent, &kind, &beforeRaw, &afterRaw); err != nil {
			return last, err
		}
		last = id
		if !docstore.MatchCollection(pattern, docstore.Path(parent)) {
			continue
		}
		c := docstore.Change{Kind: docstore.ChangeKind(kind), Path: docstore.Path(path)}
		if c.Before, err = decodeNullable(beforeRaw); err != nil {
			return last, err
		}
		if c.After, err = decodeNullable(afterRaw); err != nil {
			return last, err
		}
		if err := fn(ctx, c); err != nil {
			log.Printf("[DB] watch handler error path=%s: %v", path, err)
		}
	}
	return last, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(path docstore.Path, row rowScanner) (docstore.Document, error) {
	var raw []byte
	doc := docstore.Document{Path: path}
	if err := row.Scan(&raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return docstore.Document{}, err
	}
	data, err := decodeFields(raw)
	if err != nil {
		return docstore.Document{}, err
	}
	doc.Data = data
	return doc, nil
}

// decodeFields keeps numbers as json.Number so int64 amounts survive.
func decodeFields(raw []byte) (docstore.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var f docstore.Fields
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if f == nil {
		f = docstore.Fields{}
	}
	return f, nil
}

func decodeNullable(raw []byte) (docstore.Fields, error) {
	if raw == nil {
		return nil, nil
	}
	return decodeFields(raw)
}

func encodeNullable(f docstore.Fields) (any, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode change: %w", err)
	}
	return string(b), nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("field is %T, not a number", v)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
