// Package redisstore implements the storage port on Redis so several
// service instances can share state. Collections are hashes, event streams
// are sorted sets scored by unix milliseconds.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/ludus/internal/adapters/repository"
)

// putIfScript swaps a hash field only when it still holds the expected
// value (ARGV[2]) or, with ARGV[3] == "1", only when it is absent.
var putIfScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if ARGV[3] == '1' then
  if cur then return 0 end
else
  if (not cur) or cur ~= ARGV[2] then return 0 end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[4])
return 1
`)

// unlockScript deletes a lock key only if it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Store is a repository.Backend backed by Redis.
type Store struct {
	client redis.UniversalClient

	lockTTL        time.Duration
	lockRetry      time.Duration
	eventRetention time.Duration
}

var _ repository.Backend = (*Store)(nil)

// New connects to the Redis server at addr and verifies it answers.
func New(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, repository.Wrap("ping", addr, "", err)
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		lockTTL:   defaultLockTTL,
		lockRetry: defaultLockRetry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Name() string { return "redis" }

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	val, err := s.client.HGet(ctx, collection, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, repository.Wrap("hget", collection, key, err)
	}
	return val, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, value []byte) error {
	return repository.Wrap("hset", collection, key, s.client.HSet(ctx, collection, key, value).Err())
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	return repository.Wrap("hdel", collection, key, s.client.HDel(ctx, collection, key).Err())
}

func (s *Store) Values(ctx context.Context, collection string) ([][]byte, error) {
	vals, err := s.client.HVals(ctx, collection).Result()
	if err != nil {
		return nil, repository.Wrap("hvals", collection, "", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *Store) Entries(ctx context.Context, collection string) ([]repository.Entry, error) {
	all, err := s.client.HGetAll(ctx, collection).Result()
	if err != nil {
		return nil, repository.Wrap("hgetall", collection, "", err)
	}
	out := make([]repository.Entry, 0, len(all))
	for k, v := range all {
		out = append(out, repository.Entry{Key: k, Value: []byte(v)})
	}
	return out, nil
}

func (s *Store) PutIf(ctx context.Context, collection, key string, expected, value []byte) (bool, error) {
	absent := "0"
	if expected == nil {
		absent = "1"
	}
	n, err := putIfScript.Run(ctx, s.client, []string{collection}, key, expected, absent, value).Int()
	if err != nil {
		return false, repository.Wrap("put_if", collection, key, err)
	}
	return n == 1, nil
}

func (s *Store) Replace(ctx context.Context, collection, oldKey, newKey string, value []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, collection, oldKey)
		pipe.HSet(ctx, collection, newKey, value)
		return nil
	})
	return repository.Wrap("replace", collection, newKey, err)
}

// Lock takes a SET NX PX lock carrying a random token, polling until it is
// free or ctx is done. The lock expires after the configured TTL if the
// holder never releases it.
func (s *Store) Lock(ctx context.Context, name string) (repository.Unlock, error) {
	key := defaultLockKeyPrefix + name
	token := uuid.NewString()

	ticker := time.NewTicker(s.lockRetry)
	defer ticker.Stop()
	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return nil, repository.Wrap("lock", key, "", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", repository.ErrLockTimeout, name, ctx.Err())
		case <-ticker.C:
		}
	}

	var (
		once sync.Once
		err  error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			err = repository.Wrap("unlock", key, "", unlockScript.Run(ctx, s.client, []string{key}, token).Err())
		})
		return err
	}, nil
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (s *Store) Append(ctx context.Context, stream, id string, at time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, stream, redis.Z{Score: float64(at.UnixMilli()), Member: id})
		if s.eventRetention > 0 {
			pipe.Expire(ctx, stream, s.eventRetention)
		}
		return nil
	})
	return repository.Wrap("zadd", stream, id, err)
}

func (s *Store) CountSince(ctx context.Context, stream string, since time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, stream, "("+score(since), "+inf").Result()
	if err != nil {
		return 0, repository.Wrap("zcount", stream, "", err)
	}
	return int(n), nil
}

func (s *Store) TrimBefore(ctx context.Context, stream string, cutoff time.Time) error {
	return repository.Wrap("zremrangebyscore", stream, "", s.client.ZRemRangeByScore(ctx, stream, "-inf", score(cutoff)).Err())
}
