// Package repotest holds the behaviour every repository.Backend must show.
// Backend packages run it from their own tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/ludus/internal/adapters/repository"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) repository.Backend

// Run exercises b's collections, conditional writes, locks and event log.
func Run(t *testing.T, newBackend Factory) {
	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(context.Background(), "c", "missing")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("PutGetDelete", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, "c", "k", []byte("v1")))
		got, err := b.Get(ctx, "c", "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, b.Put(ctx, "c", "k", []byte("v2")))
		got, err = b.Get(ctx, "c", "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)

		require.NoError(t, b.Delete(ctx, "c", "k"))
		_, err = b.Get(ctx, "c", "k")
		require.ErrorIs(t, err, repository.ErrNotFound)
		require.NoError(t, b.Delete(ctx, "c", "k"))
	})

	t.Run("CollectionsAreIndependent", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, "a", "k", []byte("from-a")))
		require.NoError(t, b.Put(ctx, "b", "k", []byte("from-b")))
		got, err := b.Get(ctx, "a", "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("from-a"), got)
	})

	t.Run("ValuesAndEntries", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, b.Put(ctx, "c", fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("v%d", i))))
		}
		vals, err := b.Values(ctx, "c")
		require.NoError(t, err)
		got := make([]string, 0, len(vals))
		for _, v := range vals {
			got = append(got, string(v))
		}
		sort.Strings(got)
		assert.Equal(t, []string{"v0", "v1", "v2"}, got)

		entries, err := b.Entries(ctx, "c")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		byKey := map[string]string{}
		for _, e := range entries {
			byKey[e.Key] = string(e.Value)
		}
		assert.Equal(t, map[string]string{"k0": "v0", "k1": "v1", "k2": "v2"}, byKey)

		empty, err := b.Entries(ctx, "nothing-here")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("PutIfAbsent", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		ok, err := b.PutIf(ctx, "c", "k", nil, []byte("first"))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = b.PutIf(ctx, "c", "k", nil, []byte("second"))
		require.NoError(t, err)
		assert.False(t, ok)
		got, err := b.Get(ctx, "c", "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), got)
	})

	t.Run("PutIfMatches", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, "c", "k", []byte("v1")))

		ok, err := b.PutIf(ctx, "c", "k", []byte("stale"), []byte("v2"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = b.PutIf(ctx, "c", "k", []byte("v1"), []byte("v2"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.PutIf(ctx, "c", "missing", []byte("v1"), []byte("v2"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutIfIsExclusive", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, "c", "k", []byte("0")))

		const writers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := b.PutIf(ctx, "c", "k", []byte("0"), []byte(fmt.Sprintf("w%d", i)))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("Replace", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, "c", "old", []byte("o")))
		require.NoError(t, b.Put(ctx, "c", "other", []byte("x")))
		require.NoError(t, b.Replace(ctx, "c", "old", "new", []byte("n")))

		_, err := b.Get(ctx, "c", "old")
		require.ErrorIs(t, err, repository.ErrNotFound)
		got, err := b.Get(ctx, "c", "new")
		require.NoError(t, err)
		assert.Equal(t, []byte("n"), got)
		entries, err := b.Entries(ctx, "c")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("LockIsExclusivePerName", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		unlock, err := b.Lock(ctx, "ns-a")
		require.NoError(t, err)

		other, err := b.Lock(ctx, "ns-b")
		require.NoError(t, err, "different names must not contend")
		require.NoError(t, other(ctx))

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = b.Lock(waitCtx, "ns-a")
		require.ErrorIs(t, err, repository.ErrLockTimeout)

		require.NoError(t, unlock(ctx))
		require.NoError(t, unlock(ctx))
		again, err := b.Lock(ctx, "ns-a")
		require.NoError(t, err)
		require.NoError(t, again(ctx))
	})

	t.Run("LockSerialisesCriticalSection", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		var inside, maxInside atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := b.Lock(ctx, "shared")
				if !assert.NoError(t, err) {
					return
				}
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				assert.NoError(t, unlock(ctx))
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside.Load())
	})

	t.Run("EventLogWindow", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		base := time.UnixMilli(1_700_000_000_000)
		require.NoError(t, b.Append(ctx, "s", "e1", base))
		require.NoError(t, b.Append(ctx, "s", "e2", base.Add(time.Second)))
		require.NoError(t, b.Append(ctx, "s", "e3", base.Add(2*time.Second)))
		require.NoError(t, b.Append(ctx, "other", "e4", base))

		n, err := b.CountSince(ctx, "s", base)
		require.NoError(t, err)
		assert.Equal(t, 2, n, "events exactly at since are excluded")

		n, err = b.CountSince(ctx, "s", base.Add(-time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		require.NoError(t, b.TrimBefore(ctx, "s", base.Add(time.Second)))
		n, err = b.CountSince(ctx, "s", time.UnixMilli(0))
		require.NoError(t, err)
		assert.Equal(t, 1, n, "events at the cutoff are trimmed")

		n, err = b.CountSince(ctx, "other", time.UnixMilli(0))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("EventLogConcurrentAppend", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		at := time.UnixMilli(1_700_000_000_000)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, b.Append(ctx, "s", fmt.Sprintf("e%d", i), at))
			}(i)
		}
		wg.Wait()
		n, err := b.CountSince(ctx, "s", at.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, 20, n, "same-instant events from different ids all count")
	})
}
