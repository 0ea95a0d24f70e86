// Package memory implements the storage port in process memory.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/okian/ludus/internal/adapters/repository"
)

type event struct {
	id string
	at time.Time
}

// Store keeps collections and event streams in maps. Collection data is
// guarded by one RWMutex held only for map access; named locks come from a
// KeyedMutex so unrelated namespaces never wait on each other.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	streams     map[string][]event

	locks *repository.KeyedMutex
}

var _ repository.Backend = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
		streams:     make(map[string][]event),
		locks:       repository.NewKeyedMutex(),
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, repository.Wrap("get", collection, key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.collections[collection][key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(val), nil
}

func (s *Store) Put(ctx context.Context, collection, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return repository.Wrap("put", collection, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(collection, key, value)
	return nil
}

func (s *Store) putLocked(collection, key string, value []byte) {
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string][]byte)
		s.collections[collection] = c
	}
	c[key] = clone(value)
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return repository.Wrap("delete", collection, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(collection, key)
	return nil
}

func (s *Store) deleteLocked(collection, key string) {
	c, ok := s.collections[collection]
	if !ok {
		return
	}
	delete(c, key)
	if len(c) == 0 {
		delete(s.collections, collection)
	}
}

func (s *Store) Values(ctx context.Context, collection string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, repository.Wrap("values", collection, "", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.collections[collection]
	out := make([][]byte, 0, len(c))
	for _, v := range c {
		out = append(out, clone(v))
	}
	return out, nil
}

func (s *Store) Entries(ctx context.Context, collection string) ([]repository.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, repository.Wrap("entries", collection, "", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.collections[collection]
	out := make([]repository.Entry, 0, len(c))
	for k, v := range c {
		out = append(out, repository.Entry{Key: k, Value: clone(v)})
	}
	return out, nil
}

func (s *Store) PutIf(ctx context.Context, collection, key string, expected, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, repository.Wrap("put_if", collection, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.collections[collection][key]
	switch {
	case expected == nil && exists:
		return false, nil
	case expected != nil && (!exists || !bytes.Equal(current, expected)):
		return false, nil
	}
	s.putLocked(collection, key, value)
	return true, nil
}

func (s *Store) Replace(ctx context.Context, collection, oldKey, newKey string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return repository.Wrap("replace", collection, newKey, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(collection, oldKey)
	s.putLocked(collection, newKey, value)
	return nil
}

func (s *Store) Lock(ctx context.Context, name string) (repository.Unlock, error) {
	return s.locks.Lock(ctx, name)
}

func (s *Store) Append(ctx context.Context, stream, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return repository.Wrap("append", stream, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[stream] = append(s.streams[stream], event{id: id, at: at})
	return nil
}

func (s *Store) CountSince(ctx context.Context, stream string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, repository.Wrap("count_since", stream, "", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.streams[stream] {
		if e.at.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) TrimBefore(ctx context.Context, stream string, cutoff time.Time) error {
	if err := ctx.Err(); err != nil {
		return repository.Wrap("trim_before", stream, "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.streams[stream]
	kept := events[:0]
	for _, e := range events {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.streams, stream)
		return nil
	}
	s.streams[stream] = kept
	return nil
}
