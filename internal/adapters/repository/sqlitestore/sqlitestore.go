// Package sqlitestore implements the storage port on a local SQLite file.
// It is durable but single-node: locks are process-local, so only one
// service instance may use a given database file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/ludus/internal/adapters/repository"

	_ "modernc.org/sqlite"
)

// Store is a repository.Backend backed by SQLite.
type Store struct {
	db    *sql.DB
	locks *repository.KeyedMutex
}

var _ repository.Backend = (*Store)(nil)

// Open opens (creating if needed) the database at dbPath. ":memory:" gives
// a private in-memory database.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, locks: repository.NewKeyedMutex()}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
  collection TEXT NOT NULL,
  key TEXT NOT NULL,
  value BLOB NOT NULL,
  PRIMARY KEY (collection, key)
);
CREATE TABLE IF NOT EXISTS events (
  stream TEXT NOT NULL,
  id TEXT NOT NULL,
  at_ms INTEGER NOT NULL,
  PRIMARY KEY (stream, id)
);
CREATE INDEX IF NOT EXISTS events_stream_at ON events (stream, at_ms);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var val []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE collection = ? AND key = ?`, collection, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, repository.Wrap("get", collection, key, err)
	}
	return val, nil
}

const upsertStmt = `
INSERT INTO kv (collection, key, value) VALUES (?, ?, ?)
ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value;
`

func (s *Store) Put(ctx context.Context, collection, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, upsertStmt, collection, key, value)
	return repository.Wrap("put", collection, key, err)
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE collection = ? AND key = ?`, collection, key)
	return repository.Wrap("delete", collection, key, err)
}

func (s *Store) Values(ctx context.Context, collection string) ([][]byte, error) {
	entries, err := s.Entries(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out, nil
}

func (s *Store) Entries(ctx context.Context, collection string) ([]repository.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE collection = ?`, collection)
	if err != nil {
		return nil, repository.Wrap("entries", collection, "", err)
	}
	defer rows.Close()
	var out []repository.Entry
	for rows.Next() {
		var e repository.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, repository.Wrap("entries", collection, "", err)
		}
		out = append(out, e)
	}
	return out, repository.Wrap("entries", collection, "", rows.Err())
}

func (s *Store) PutIf(ctx context.Context, collection, key string, expected, value []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if expected == nil {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO kv (collection, key, value) VALUES (?, ?, ?) ON CONFLICT(collection, key) DO NOTHING`,
			collection, key, value)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE kv SET value = ? WHERE collection = ? AND key = ? AND value = ?`,
			value, collection, key, expected)
	}
	if err != nil {
		return false, repository.Wrap("put_if", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, repository.Wrap("put_if", collection, key, err)
	}
	return n == 1, nil
}

func (s *Store) Replace(ctx context.Context, collection, oldKey, newKey string, value []byte) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Wrap("replace", collection, newKey, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM kv WHERE collection = ? AND key = ?`, collection, oldKey); err != nil {
		return repository.Wrap("replace", collection, oldKey, err)
	}
	if _, err = tx.ExecContext(ctx, upsertStmt, collection, newKey, value); err != nil {
		return repository.Wrap("replace", collection, newKey, err)
	}
	if err = tx.Commit(); err != nil {
		return repository.Wrap("replace", collection, newKey, err)
	}
	return nil
}

func (s *Store) Lock(ctx context.Context, name string) (repository.Unlock, error) {
	return s.locks.Lock(ctx, name)
}

func (s *Store) Append(ctx context.Context, stream, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (stream, id, at_ms) VALUES (?, ?, ?) ON CONFLICT(stream, id) DO UPDATE SET at_ms = excluded.at_ms`,
		stream, id, at.UnixMilli())
	return repository.Wrap("append", stream, id, err)
}

func (s *Store) CountSince(ctx context.Context, stream string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE stream = ? AND at_ms > ?`, stream, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, repository.Wrap("count_since", stream, "", err)
	}
	return n, nil
}

func (s *Store) TrimBefore(ctx context.Context, stream string, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE stream = ? AND at_ms <= ?`, stream, cutoff.UnixMilli())
	return repository.Wrap("trim_before", stream, "", err)
}
