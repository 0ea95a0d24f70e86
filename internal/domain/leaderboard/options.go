package leaderboard

import (
	"time"

	"github.com/okian/ludus/internal/adapters/cache"
	"github.com/okian/ludus/pkg/logger"
)

// Option applies a configuration option to the Maintainer.
type Option func(*Maintainer)

// WithCapacity sets how many records are retained per namespace.
// Values below 1 are ignored.
func WithCapacity(k int) Option {
	return func(m *Maintainer) {
		if k > 0 {
			m.capacity = k
		}
	}
}

// WithCache serves Leaderboard reads from c. Submissions invalidate the
// namespace entry in this process only.
func WithCache(c cache.Cache) Option {
	return func(m *Maintainer) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Maintainer) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock sets the time source used to stamp records without a date.
func WithClock(now func() time.Time) Option {
	return func(m *Maintainer) {
		if now != nil {
			m.now = now
		}
	}
}
