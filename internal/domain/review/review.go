// Package review stores challenge reviews and computes average ratings.
package review

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/pkg/metrics"
)

const (
	collectionPrefix = "reviews:"
	indexCollection  = "review_challenges"
)

var (
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrMissingChallenge = errors.New("challenge id is required")
)

// Aggregator stores reviews per challenge.
type Aggregator struct {
	store repository.Store
	now   func() time.Time
}

// New creates an Aggregator over store. now may be nil.
func New(store repository.Store, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, now: now}
}

// Store validates r, assigns its id and creation time, and persists it.
func (a *Aggregator) Store(ctx context.Context, r model.Review) (model.Review, error) {
	if strings.TrimSpace(r.ChallengeID) == "" {
		return model.Review{}, ErrMissingChallenge
	}
	if r.Rating < 1 || r.Rating > 5 {
		return model.Review{}, fmt.Errorf("%w: got %d", ErrInvalidRating, r.Rating)
	}
	r.ID = uuid.NewString()
	r.CreatedAt = a.now().UTC()

	data, err := json.Marshal(r)
	if err != nil {
		return model.Review{}, fmt.Errorf("encode review: %w", err)
	}
	coll := collectionPrefix + r.ChallengeID
	if err := a.store.Put(ctx, coll, r.ID, data); err != nil {
		return model.Review{}, repository.Wrap("put", coll, r.ID, err)
	}
	if err := a.store.Put(ctx, indexCollection, r.ChallengeID, []byte(r.ChallengeID)); err != nil {
		return model.Review{}, repository.Wrap("put", indexCollection, r.ChallengeID, err)
	}
	metrics.RecordReviewStored(int(r.Rating))
	return r, nil
}

// ByChallenge returns the reviews of challengeID, oldest first.
func (a *Aggregator) ByChallenge(ctx context.Context, challengeID string) ([]model.Review, error) {
	coll := collectionPrefix + challengeID
	values, err := a.store.Values(ctx, coll)
	if err != nil {
		return nil, repository.Wrap("values", coll, "", err)
	}
	out := make([]model.Review, 0, len(values))
	for _, v := range values {
		var r model.Review
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, repository.Wrap("decode", coll, "", err)
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(x, y model.Review) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out, nil
}

// All returns every review grouped by challenge id.
func (a *Aggregator) All(ctx context.Context) ([]model.Review, error) {
	entries, err := a.store.Entries(ctx, indexCollection)
	if err != nil {
		return nil, repository.Wrap("entries", indexCollection, "", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Key)
	}
	slices.Sort(ids)

	var out []model.Review
	for _, id := range ids {
		rs, err := a.ByChallenge(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

// Average is the mean rating of challengeID, 0 when it has no reviews.
func (a *Aggregator) Average(ctx context.Context, challengeID string) (float64, error) {
	rs, err := a.ByChallenge(ctx, challengeID)
	if err != nil || len(rs) == 0 {
		return 0, err
	}
	var sum int
	for _, r := range rs {
		sum += int(r.Rating)
	}
	return float64(sum) / float64(len(rs)), nil
}
