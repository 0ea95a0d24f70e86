// Package repository defines the storage port used by the domain engines
// and the decorators shared by every backend.
package repository

import (
	"context"
	"time"
)

// Entry is a keyed value inside a collection.
type Entry struct {
	Key   string
	Value []byte
}

// Store provides mapping-style collections keyed by string. Values are
// opaque payloads; callers own their encoding.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, collection, key string) ([]byte, error)
	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, collection, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, collection, key string) error
	// Values returns every value of the collection in unspecified order.
	Values(ctx context.Context, collection string) ([][]byte, error)
	// Entries returns every key/value pair of the collection in unspecified order.
	Entries(ctx context.Context, collection string) ([]Entry, error)
	// PutIf stores value only when the current value equals expected.
	// A nil expected means "only if absent". Returns false when the
	// condition did not hold and nothing was written.
	PutIf(ctx context.Context, collection, key string, expected, value []byte) (bool, error)
	// Replace atomically deletes oldKey and stores value under newKey.
	Replace(ctx context.Context, collection, oldKey, newKey string, value []byte) error
}

// Unlock releases a lock obtained from a Locker. Calling it more than once is a no-op.
type Unlock func(ctx context.Context) error

// Locker hands out exclusive named locks. Backends shared by several
// processes must return locks that are exclusive across all of them.
type Locker interface {
	Lock(ctx context.Context, name string) (Unlock, error)
}

// EventLog keeps timestamped events per stream. Append must be atomic with
// respect to concurrent appends on the same stream.
type EventLog interface {
	// Append records event id at the given instant.
	Append(ctx context.Context, stream, id string, at time.Time) error
	// CountSince counts events strictly after since.
	CountSince(ctx context.Context, stream string, since time.Time) (int, error)
	// TrimBefore removes events at or before cutoff.
	TrimBefore(ctx context.Context, stream string, cutoff time.Time) error
}

// Backend is a complete storage implementation.
type Backend interface {
	Store
	Locker
	EventLog

	// Name identifies the backend in logs and metrics.
	Name() string
	Close() error
}
