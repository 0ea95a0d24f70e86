// Package cache provides the byte-level read cache placed in front of
// leaderboard reads.
package cache

import (
	"time"
	"unsafe"

	"github.com/coocood/freecache"

	"github.com/okian/ludus/pkg/metrics"
)

// minSizeBytes is the smallest arena freecache accepts.
const minSizeBytes = 512 * 1024

// Cache stores encoded read results. Implementations are safe for concurrent use.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Del(key string)
}

// Freecache is a Cache backed by a fixed-size freecache arena.
type Freecache struct {
	name  string
	cache *freecache.Cache
	ttl   int
}

// Option configures a Freecache.
type Option func(*Freecache)

// WithTTL bounds how long an entry is served without invalidation. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Freecache) {
		if ttl > 0 {
			c.ttl = max(int(ttl.Seconds()), 1)
		}
	}
}

// New returns a cache of sizeMB megabytes. name labels its metrics.
func New(name string, sizeMB int, opts ...Option) *Freecache {
	size := max(sizeMB*1024*1024, minSizeBytes)
	c := &Freecache{name: name, cache: freecache.NewCache(size)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// unsafeStringToBytes converts without allocating; freecache copies keys.
func unsafeStringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (c *Freecache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get(unsafeStringToBytes(key))
	if err != nil {
		metrics.RecordCacheMiss(c.name)
		return nil, false
	}
	metrics.RecordCacheHit(c.name)
	return val, true
}

func (c *Freecache) Set(key string, value []byte) {
	_ = c.cache.Set(unsafeStringToBytes(key), value, c.ttl)
	metrics.UpdateCacheEntries(c.name, c.cache.EntryCount())
}

func (c *Freecache) Del(key string) {
	c.cache.Del(unsafeStringToBytes(key))
	metrics.UpdateCacheEntries(c.name, c.cache.EntryCount())
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(string) ([]byte, bool) { return nil, false }
func (Noop) Set(string, []byte)        {}
func (Noop) Del(string)                {}
