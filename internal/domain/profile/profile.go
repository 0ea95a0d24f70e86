// Package profile stores player profiles.
package profile

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
)

const collection = "profiles"

var (
	ErrNotFound  = errors.New("profile not found")
	ErrMissingID = errors.New("profile id is required")
)

// Store reads and writes profiles.
type Store struct {
	store repository.Store
	now   func() time.Time
}

// New creates a profile Store.
func New(store repository.Store) *Store {
	return &Store{store: store, now: time.Now}
}

// Get returns the profile with id.
func (s *Store) Get(ctx context.Context, id string) (model.Profile, error) {
	raw, err := s.store.Get(ctx, collection, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Profile{}, repository.Wrap("get", collection, id, err)
	}
	var p model.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Profile{}, repository.Wrap("decode", collection, id, err)
	}
	return p, nil
}

// Save creates or replaces p.
func (s *Store) Save(ctx context.Context, p model.Profile) (model.Profile, error) {
	if strings.TrimSpace(p.ID) == "" {
		return model.Profile{}, ErrMissingID
	}
	p.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return model.Profile{}, fmt.Errorf("encode profile: %w", err)
	}
	if err := s.store.Put(ctx, collection, p.ID, data); err != nil {
		return model.Profile{}, repository.Wrap("put", collection, p.ID, err)
	}
	return p, nil
}

// List returns every profile ordered by id.
func (s *Store) List(ctx context.Context) ([]model.Profile, error) {
	values, err := s.store.Values(ctx, collection)
	if err != nil {
		return nil, repository.Wrap("values", collection, "", err)
	}
	out := make([]model.Profile, 0, len(values))
	for _, v := range values {
		var p model.Profile
		if err := json.Unmarshal(v, &p); err != nil {
			return nil, repository.Wrap("decode", collection, "", err)
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Profile) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}
