package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/ludus/pkg/metrics"
)

// InstrumentedBackend records latency and failures of every call on the
// wrapped backend.
type InstrumentedBackend struct {
	Backend
	name string
}

// Instrumented wraps b with prometheus instrumentation.
func Instrumented(b Backend) *InstrumentedBackend {
	return &InstrumentedBackend{Backend: b, name: b.Name()}
}

func (i *InstrumentedBackend) observe(op string, start time.Time, err error) {
	metrics.RecordStorageOperation(i.name, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordStorageError(i.name, op)
		metrics.RecordErrorByComponent("repository", op)
	}
}

func (i *InstrumentedBackend) Get(ctx context.Context, collection, key string) (val []byte, err error) {
	start := time.Now()
	defer func() { i.observe("get", start, err) }()
	return i.Backend.Get(ctx, collection, key)
}

func (i *InstrumentedBackend) Put(ctx context.Context, collection, key string, value []byte) (err error) {
	start := time.Now()
	defer func() { i.observe("put", start, err) }()
	return i.Backend.Put(ctx, collection, key, value)
}

func (i *InstrumentedBackend) Delete(ctx context.Context, collection, key string) (err error) {
	start := time.Now()
	defer func() { i.observe("delete", start, err) }()
	return i.Backend.Delete(ctx, collection, key)
}

func (i *InstrumentedBackend) Values(ctx context.Context, collection string) (vals [][]byte, err error) {
	start := time.Now()
	defer func() { i.observe("values", start, err) }()
	return i.Backend.Values(ctx, collection)
}

func (i *InstrumentedBackend) Entries(ctx context.Context, collection string) (entries []Entry, err error) {
	start := time.Now()
	defer func() { i.observe("entries", start, err) }()
	return i.Backend.Entries(ctx, collection)
}

func (i *InstrumentedBackend) PutIf(ctx context.Context, collection, key string, expected, value []byte) (ok bool, err error) {
	start := time.Now()
	defer func() { i.observe("put_if", start, err) }()
	return i.Backend.PutIf(ctx, collection, key, expected, value)
}

func (i *InstrumentedBackend) Replace(ctx context.Context, collection, oldKey, newKey string, value []byte) (err error) {
	start := time.Now()
	defer func() { i.observe("replace", start, err) }()
	return i.Backend.Replace(ctx, collection, oldKey, newKey, value)
}

func (i *InstrumentedBackend) Lock(ctx context.Context, name string) (unlock Unlock, err error) {
	start := time.Now()
	defer func() {
		i.observe("lock", start, err)
		metrics.RecordLockWait(i.name, float64(time.Since(start).Microseconds())/1000)
	}()
	return i.Backend.Lock(ctx, name)
}

func (i *InstrumentedBackend) Append(ctx context.Context, stream, id string, at time.Time) (err error) {
	start := time.Now()
	defer func() { i.observe("append", start, err) }()
	return i.Backend.Append(ctx, stream, id, at)
}

func (i *InstrumentedBackend) CountSince(ctx context.Context, stream string, since time.Time) (n int, err error) {
	start := time.Now()
	defer func() { i.observe("count_since", start, err) }()
	return i.Backend.CountSince(ctx, stream, since)
}

func (i *InstrumentedBackend) TrimBefore(ctx context.Context, stream string, cutoff time.Time) (err error) {
	start := time.Now()
	defer func() { i.observe("trim_before", start, err) }()
	return i.Backend.TrimBefore(ctx, stream, cutoff)
}
