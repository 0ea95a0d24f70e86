package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for storage errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrInfrastructure = errors.New("storage failure")
	ErrLockTimeout    = errors.New("lock not acquired")
)

// OpError carries the failing operation and its target. It always matches
// ErrInfrastructure with errors.Is.
type OpError struct {
	Op         string
	Collection string
	Key        string
	Err        error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{ErrInfrastructure, e.Err}
}

// Wrap marks err as an infrastructure failure of op on collection/key.
// Nil, ErrNotFound and already wrapped errors pass through unchanged.
func Wrap(op, collection, key string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{Op: op, Collection: collection, Key: key, Err: err}
}
