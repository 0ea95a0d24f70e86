package repository

import (
	"context"
	"fmt"
	"sync"
)

// KeyedMutex is an in-process Locker with one lock per name. Names that are
// not held take no memory. It is only exclusive inside a single process.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock blocks until name is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, name string) (Unlock, error) {
	k.mu.Lock()
	s, ok := k.slots[name]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[name] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(name, s)
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, name, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-s.ch
			k.release(name, s)
		})
		return nil
	}, nil
}

func (k *KeyedMutex) release(name string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, name)
	}
}

// Held reports how many names currently have holders or waiters.
func (k *KeyedMutex) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
