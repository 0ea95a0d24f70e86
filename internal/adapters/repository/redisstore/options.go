package redisstore

import "time"

// Default lock and retention settings.
const (
	defaultLockTTL       = 5 * time.Second
	defaultLockRetry     = 10 * time.Millisecond
	defaultLockKeyPrefix = "lock:"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLockTTL bounds how long a crashed holder can keep a lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLockRetry sets the polling interval while waiting for a lock.
func WithLockRetry(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.lockRetry = interval
		}
	}
}

// WithEventRetention sets the key expiry refreshed on every Append, so
// streams that stop receiving events are reclaimed.
func WithEventRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.eventRetention = d
		}
	}
}
