// Package leaderboard keeps a capacity-bounded, ranked set of performance
// records per namespace.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/ludus/internal/adapters/cache"
	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/pkg/logger"
	"github.com/okian/ludus/pkg/metrics"
)

// DefaultCapacity is the number of records retained per namespace.
const DefaultCapacity = 10

const (
	collectionPrefix = "performance_records:"
	lockPrefix       = "leaderboard:"
	cachePrefix      = "leaderboard:"
)

// Submission outcomes, also used as metric labels.
const (
	OutcomeAccepted  = "accepted"
	OutcomeEvicted   = "evicted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Storage is the part of the storage port the Maintainer needs.
type Storage interface {
	repository.Store
	repository.Locker
}

// Submission describes an accepted record.
type Submission struct {
	ID     string
	Record model.PerformanceRecord
	// Outcome is OutcomeAccepted, OutcomeEvicted or OutcomeDuplicate.
	Outcome string
	// Evicted lists the keys removed to make room, worst last.
	Evicted []string
}

// Maintainer enforces the per-namespace capacity and eviction policy.
type Maintainer struct {
	store    Storage
	capacity int
	cache    cache.Cache
	log      logger.Logger
	now      func() time.Time

	// fillMu orders cache fills against invalidations; generations counts
	// invalidations per namespace so a read that raced a write is not cached.
	fillMu      sync.Mutex
	generations map[string]uint64
}

// New creates a Maintainer over store.
func New(store Storage, opts ...Option) *Maintainer {
	m := &Maintainer{
		store:    store,
		capacity: DefaultCapacity,
		cache:    cache.Noop{},
		log:      logger.Nop(),
		now:      time.Now,

		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Capacity returns the number of records retained per namespace.
func (m *Maintainer) Capacity() int { return m.capacity }

func collection(namespace string) string { return collectionPrefix + namespace }

// Submit offers rec to the namespace leaderboard. It returns
// ErrCapacityExceeded when the board is full and rec does not strictly
// outrank the worst retained record.
func (m *Maintainer) Submit(ctx context.Context, namespace string, rec model.PerformanceRecord) (Submission, error) {
	sub, err := m.submit(ctx, namespace, rec)
	switch {
	case err == nil:
		metrics.RecordLeaderboardSubmission(sub.Outcome)
	case errors.Is(err, ErrCapacityExceeded):
		metrics.RecordLeaderboardSubmission(OutcomeRejected)
	default:
		metrics.RecordLeaderboardSubmission(OutcomeError)
	}
	return sub, err
}

func (m *Maintainer) submit(ctx context.Context, namespace string, rec model.PerformanceRecord) (Submission, error) {
	if err := rec.Validate(); err != nil {
		return Submission{}, err
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = m.now()
	}
	rec.RecordedAt = rec.RecordedAt.UTC()
	rec.Namespace = namespace

	key, err := rec.Key()
	if err != nil {
		return Submission{}, fmt.Errorf("encode record: %w", err)
	}
	data, err := rec.Encode()
	if err != nil {
		return Submission{}, fmt.Errorf("encode record: %w", err)
	}

	coll := collection(namespace)
	unlock, err := m.store.Lock(ctx, lockPrefix+namespace)
	if err != nil {
		return Submission{}, repository.Wrap("lock", coll, "", err)
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			m.log.Warn(ctx, "leaderboard unlock failed", logger.String("namespace", namespace), logger.Error(uerr))
		}
	}()

	existing, err := m.load(ctx, namespace, true)
	if err != nil {
		return Submission{}, err
	}

	sub := Submission{ID: key, Record: rec, Outcome: OutcomeAccepted}
	for _, e := range existing {
		if e.key == key {
			sub.Outcome = OutcomeDuplicate
			return sub, nil
		}
	}

	if len(existing) < m.capacity {
		if err := m.store.Put(ctx, coll, key, data); err != nil {
			return Submission{}, repository.Wrap("put", coll, key, err)
		}
		m.invalidate(namespace)
		return sub, nil
	}

	sortEntries(existing)
	// existing[capacity-1] is the record that leaves when rec enters; any
	// surplus past it comes from data written before the limit applied.
	cutoff := existing[m.capacity-1]
	if !outranks(rec, cutoff.rec) {
		return Submission{}, fmt.Errorf("%w: %d%% does not outrank %d%% in %s",
			ErrCapacityExceeded, rec.Percentage, cutoff.rec.Percentage, namespace)
	}

	evicted := existing[m.capacity-1:]
	if err := m.store.Replace(ctx, coll, cutoff.key, key, data); err != nil {
		return Submission{}, repository.Wrap("replace", coll, cutoff.key, err)
	}
	sub.Outcome = OutcomeEvicted
	sub.Evicted = append(sub.Evicted, cutoff.key)
	metrics.RecordLeaderboardEviction()
	for _, e := range evicted[1:] {
		if err := m.store.Delete(ctx, coll, e.key); err != nil {
			m.invalidate(namespace)
			return Submission{}, repository.Wrap("delete", coll, e.key, err)
		}
		sub.Evicted = append(sub.Evicted, e.key)
		metrics.RecordLeaderboardEviction()
	}
	m.invalidate(namespace)

	m.log.Debug(ctx, "leaderboard eviction",
		logger.String("namespace", namespace),
		logger.String("accepted", key),
		logger.Int("evicted", len(sub.Evicted)))
	return sub, nil
}

// Leaderboard returns every retained record of namespace, best first.
// An empty namespace yields an empty slice.
func (m *Maintainer) Leaderboard(ctx context.Context, namespace string) ([]model.RankedRecord, error) {
	if cached, ok := m.cache.Get(cachePrefix + namespace); ok {
		var out []model.RankedRecord
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}

	gen := m.generation(namespace)
	entries, err := m.load(ctx, namespace, false)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	ranked := rankEntries(entries)

	if data, err := json.Marshal(ranked); err == nil {
		m.fill(namespace, gen, data)
	}
	return ranked, nil
}

// load decodes every stored record. With migrate set (namespace lock held)
// legacy payloads are rewritten in the current schema under their new key.
func (m *Maintainer) load(ctx context.Context, namespace string, migrate bool) ([]entry, error) {
	coll := collection(namespace)
	raw, err := m.store.Entries(ctx, coll)
	if err != nil {
		return nil, repository.Wrap("entries", coll, "", err)
	}

	out := make([]entry, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, kv := range raw {
		rec, legacy, err := model.DecodePerformanceRecord(kv.Value)
		if err != nil {
			return nil, repository.Wrap("decode", coll, kv.Key, err)
		}
		rec.Namespace = namespace
		e := entry{key: kv.Key, rec: rec}

		if legacy {
			newKey, err := rec.Key()
			if err != nil {
				return nil, repository.Wrap("decode", coll, kv.Key, err)
			}
			if migrate {
				if err := m.migrate(ctx, coll, kv.Key, newKey, rec, seen); err != nil {
					return nil, err
				}
			}
			e.key = newKey
		}

		if _, dup := seen[e.key]; dup {
			continue
		}
		seen[e.key] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func (m *Maintainer) migrate(ctx context.Context, coll, oldKey, newKey string, rec model.PerformanceRecord, seen map[string]struct{}) error {
	data, err := rec.Encode()
	if err != nil {
		return repository.Wrap("encode", coll, oldKey, err)
	}
	switch {
	case oldKey == newKey:
		err = m.store.Put(ctx, coll, newKey, data)
	case hasKey(seen, newKey):
		err = m.store.Delete(ctx, coll, oldKey)
	default:
		err = m.store.Replace(ctx, coll, oldKey, newKey, data)
	}
	if err != nil {
		return repository.Wrap("migrate", coll, oldKey, err)
	}
	metrics.RecordLeaderboardMigration()
	m.log.Info(ctx, "migrated legacy performance record",
		logger.String("collection", coll),
		logger.String("from", oldKey),
		logger.String("to", newKey))
	return nil
}

func hasKey(seen map[string]struct{}, key string) bool {
	_, ok := seen[key]
	return ok
}

func (m *Maintainer) generation(namespace string) uint64 {
	m.fillMu.Lock()
	defer m.fillMu.Unlock()
	return m.generations[namespace]
}

// fill caches data unless the namespace was invalidated after gen was read.
func (m *Maintainer) fill(namespace string, gen uint64, data []byte) {
	m.fillMu.Lock()
	defer m.fillMu.Unlock()
	if m.generations[namespace] != gen {
		return
	}
	m.cache.Set(cachePrefix+namespace, data)
}

func (m *Maintainer) invalidate(namespace string) {
	m.fillMu.Lock()
	defer m.fillMu.Unlock()
	m.generations[namespace]++
	m.cache.Del(cachePrefix + namespace)
}
