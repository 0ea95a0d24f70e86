// Package coupon validates and redeems coupons. Redemption is a
// compare-and-swap on the stored payload, so it stays exclusive when
// several processes share one backend.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/pkg/logger"
	"github.com/okian/ludus/pkg/metrics"
)

// DefaultMaxAttempts bounds the read-check-swap loop of Redeem.
const DefaultMaxAttempts = 32

const collection = "coupons"

// Engine owns coupon state transitions.
type Engine struct {
	store       repository.Store
	maxAttempts int
	now         func() time.Time
	log         logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithMaxAttempts sets how many lost swaps Redeem tolerates before
// returning ErrContention.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an Engine over store.
func New(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func decode(code string, raw []byte) (model.Coupon, error) {
	var c model.Coupon
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Coupon{}, repository.Wrap("decode", collection, code, err)
	}
	return c, nil
}

// Create stores a new coupon. An existing code yields ErrAlreadyExists.
func (e *Engine) Create(ctx context.Context, c model.Coupon) (model.Coupon, error) {
	c.Code = strings.TrimSpace(c.Code)
	if c.Code == "" {
		return model.Coupon{}, fmt.Errorf("%w: code is required", ErrInvalid)
	}
	if len(c.ChallengeIDs) == 0 {
		return model.Coupon{}, fmt.Errorf("%w: at least one challenge id is required", ErrInvalid)
	}
	if c.ExpirationDate.IsZero() {
		return model.Coupon{}, fmt.Errorf("%w: expiration date is required", ErrInvalid)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = e.now().UTC()
	}

	data, err := json.Marshal(c)
	if err != nil {
		return model.Coupon{}, fmt.Errorf("encode coupon: %w", err)
	}
	ok, err := e.store.PutIf(ctx, collection, c.Code, nil, data)
	if err != nil {
		return model.Coupon{}, repository.Wrap("putif", collection, c.Code, err)
	}
	if !ok {
		return model.Coupon{}, fmt.Errorf("%w: %s", ErrAlreadyExists, c.Code)
	}
	metrics.RecordCouponCreated()
	e.log.Info(ctx, "coupon created",
		logger.String("code", c.Code),
		logger.Int("uses", int(c.UsesRemaining)),
		logger.Any("challenges", c.ChallengeIDs))
	return c, nil
}

// Get returns the coupon stored under code.
func (e *Engine) Get(ctx context.Context, code string) (model.Coupon, error) {
	c, _, err := e.read(ctx, code)
	return c, err
}

func (e *Engine) read(ctx context.Context, code string) (model.Coupon, []byte, error) {
	raw, err := e.store.Get(ctx, collection, code)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Coupon{}, nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return model.Coupon{}, nil, repository.Wrap("get", collection, code, err)
	}
	c, err := decode(code, raw)
	return c, raw, err
}

// List returns every coupon ordered by code.
func (e *Engine) List(ctx context.Context) ([]model.Coupon, error) {
	entries, err := e.store.Entries(ctx, collection)
	if err != nil {
		return nil, repository.Wrap("entries", collection, "", err)
	}
	out := make([]model.Coupon, 0, len(entries))
	for _, kv := range entries {
		c, err := decode(kv.Key, kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Coupon) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

// State reports the redemption state of code for challengeID without writing.
func (e *Engine) State(ctx context.Context, code, challengeID string) (State, error) {
	c, _, err := e.read(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return StateNotFound, nil
	}
	if err != nil {
		return StateNotFound, err
	}
	return Classify(&c, challengeID, e.now()), nil
}

// Validate reports whether code could be redeemed for challengeID now.
// A missing coupon is simply not valid.
func (e *Engine) Validate(ctx context.Context, code, challengeID string) (bool, error) {
	s, err := e.State(ctx, code, challengeID)
	if err != nil {
		return false, err
	}
	return s == StateValid, nil
}

// Redeem consumes one use of code for challengeID. Refusals return
// ErrNotFound or an error wrapping ErrRedemption; the coupon as read is
// returned alongside refusals so callers can report it.
func (e *Engine) Redeem(ctx context.Context, code, challengeID string) (model.Coupon, error) {
	c, outcome, err := e.redeem(ctx, code, challengeID)
	metrics.RecordCouponRedemption(outcome)
	if err != nil {
		metrics.RecordErrorByComponent("coupon", outcome)
	}
	return c, err
}

func (e *Engine) redeem(ctx context.Context, code, challengeID string) (model.Coupon, string, error) {
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		c, raw, err := e.read(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return model.Coupon{}, StateNotFound.String(), err
		}
		if err != nil {
			return model.Coupon{}, "error", err
		}

		if s := Classify(&c, challengeID, e.now()); s != StateValid {
			return c, s.String(), fmt.Errorf("%w: %s", s.Err(), code)
		}

		c.UsesRemaining--
		next, err := json.Marshal(c)
		if err != nil {
			return model.Coupon{}, "error", fmt.Errorf("encode coupon: %w", err)
		}
		ok, err := e.store.PutIf(ctx, collection, code, raw, next)
		if err != nil {
			return model.Coupon{}, "error", repository.Wrap("putif", collection, code, err)
		}
		if ok {
			e.log.Info(ctx, "coupon redeemed",
				logger.String("code", code),
				logger.String("challenge", challengeID),
				logger.Int("uses_remaining", int(c.UsesRemaining)))
			return c, "redeemed", nil
		}
		metrics.RecordCouponConflict()
	}
	e.log.Warn(ctx, "coupon redemption gave up", logger.String("code", code), logger.Int("attempts", e.maxAttempts))
	return model.Coupon{}, "contention", fmt.Errorf("%w: %s", ErrContention, code)
}
