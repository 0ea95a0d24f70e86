// Package service wires the domain engines over one storage backend and
// exposes the operations the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/ludus/internal/adapters/cache"
	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/internal/adapters/repository/memory"
	"github.com/okian/ludus/internal/domain/chat"
	"github.com/okian/ludus/internal/domain/coupon"
	"github.com/okian/ludus/internal/domain/leaderboard"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/internal/domain/presence"
	"github.com/okian/ludus/internal/domain/profile"
	"github.com/okian/ludus/internal/domain/review"
	"github.com/okian/ludus/pkg/logger"
)

// GlobalNamespace is the leaderboard used when no namespace is given.
const GlobalNamespace = "global"

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the game backend.
type Service struct {
	mu sync.RWMutex

	backend repository.Backend

	// Core components
	leaderboard *leaderboard.Maintainer
	presence    *presence.Counter
	coupons     *coupon.Engine
	reviews     *review.Aggregator
	profiles    *profile.Store
	chat        *chat.Channels

	// Configuration
	capacity       int
	presenceWindow time.Duration
	cacheSizeMB    int
	cacheTTL       time.Duration
	maxAttempts    int
	now            func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBackend sets the storage backend. The service closes it on Stop.
func WithBackend(b repository.Backend) Option {
	return func(s *Service) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithLeaderboardCapacity sets how many records each namespace keeps.
func WithLeaderboardCapacity(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.capacity = k
		}
	}
}

// WithPresenceWindow sets the trailing presence window.
func WithPresenceWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.presenceWindow = d
		}
	}
}

// WithLeaderboardCache enables the in-process leaderboard read cache.
func WithLeaderboardCache(sizeMB int, ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheSizeMB = sizeMB
		s.cacheTTL = ttl
	}
}

// WithCouponMaxAttempts bounds the redemption swap loop.
func WithCouponMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock sets the time source shared by every engine.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service. Call Start before using it.
func New(opts ...Option) *Service {
	s := &Service{
		capacity:       leaderboard.DefaultCapacity,
		presenceWindow: presence.DefaultWindow,
		maxAttempts:    coupon.DefaultMaxAttempts,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the engines over the backend, defaulting to memory.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.backend == nil {
		s.backend = repository.Instrumented(memory.New())
	}

	var readCache cache.Cache = cache.Noop{}
	if s.cacheSizeMB > 0 {
		readCache = cache.New("leaderboard", s.cacheSizeMB, cache.WithTTL(s.cacheTTL))
	}

	s.leaderboard = leaderboard.New(s.backend,
		leaderboard.WithCapacity(s.capacity),
		leaderboard.WithCache(readCache),
		leaderboard.WithClock(s.now),
		leaderboard.WithLogger(s.logger.Named("leaderboard")))
	s.presence = presence.New(s.backend,
		presence.WithWindow(s.presenceWindow),
		presence.WithClock(s.now),
		presence.WithLogger(s.logger.Named("presence")))
	s.coupons = coupon.New(s.backend,
		coupon.WithMaxAttempts(s.maxAttempts),
		coupon.WithClock(s.now),
		coupon.WithLogger(s.logger.Named("coupon")))
	s.reviews = review.New(s.backend, s.now)
	s.profiles = profile.New(s.backend)
	s.chat = chat.New(s.backend, s.now)

	s.started = true
	s.logger.Info(ctx, "game service started",
		logger.String("backend", s.backend.Name()),
		logger.Int("capacity", s.capacity),
		logger.Duration("presence_window", s.presenceWindow),
		logger.Bool("cache", s.cacheSizeMB > 0))
	return nil
}

// Stop closes the backend.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing backend failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "game service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Ping checks that the backend answers.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.backend.Get(ctx, "health", "ping")
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func namespaceOrGlobal(ns string) string {
	if ns == "" {
		return GlobalNamespace
	}
	return ns
}

// SubmitPerformance offers rec to the namespace leaderboard.
func (s *Service) SubmitPerformance(ctx context.Context, namespace string, rec model.PerformanceRecord) (leaderboard.Submission, error) {
	if err := s.ready(); err != nil {
		return leaderboard.Submission{}, err
	}
	return s.leaderboard.Submit(ctx, namespaceOrGlobal(namespace), rec)
}

// GetLeaderboard returns the namespace leaderboard, best first.
func (s *Service) GetLeaderboard(ctx context.Context, namespace string) ([]model.RankedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.leaderboard.Leaderboard(ctx, namespaceOrGlobal(namespace))
}

// RecordPresence records a ping and returns the live count.
func (s *Service) RecordPresence(ctx context.Context, namespace string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.presence.Record(ctx, namespace)
}

// GetPresence returns the live count.
func (s *Service) GetPresence(ctx context.Context, namespace string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.presence.Count(ctx, namespace)
}

func (s *Service) CreateCoupon(ctx context.Context, c model.Coupon) (model.Coupon, error) {
	if err := s.ready(); err != nil {
		return model.Coupon{}, err
	}
	return s.coupons.Create(ctx, c)
}

func (s *Service) GetCoupon(ctx context.Context, code string) (model.Coupon, error) {
	if err := s.ready(); err != nil {
		return model.Coupon{}, err
	}
	return s.coupons.Get(ctx, code)
}

func (s *Service) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.coupons.List(ctx)
}

// ValidateCoupon reports whether code is redeemable for challengeID.
func (s *Service) ValidateCoupon(ctx context.Context, code, challengeID string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	return s.coupons.Validate(ctx, code, challengeID)
}

// RedeemCoupon consumes one use of code for challengeID.
func (s *Service) RedeemCoupon(ctx context.Context, code, challengeID string) (model.Coupon, error) {
	if err := s.ready(); err != nil {
		return model.Coupon{}, err
	}
	return s.coupons.Redeem(ctx, code, challengeID)
}

func (s *Service) SubmitReview(ctx context.Context, r model.Review) (model.Review, error) {
	if err := s.ready(); err != nil {
		return model.Review{}, err
	}
	return s.reviews.Store(ctx, r)
}

func (s *Service) GetReviews(ctx context.Context, challengeID string) ([]model.Review, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.reviews.ByChallenge(ctx, challengeID)
}

func (s *Service) GetAllReviews(ctx context.Context) ([]model.Review, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.reviews.All(ctx)
}

// GetAverageRating returns the mean rating, 0 without reviews.
func (s *Service) GetAverageRating(ctx context.Context, challengeID string) (float64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.reviews.Average(ctx, challengeID)
}

// SendChatMessage posts msg to channel.
func (s *Service) SendChatMessage(ctx context.Context, channel string, msg model.ChatMessage) (model.ChatMessage, error) {
	if err := s.ready(); err != nil {
		return model.ChatMessage{}, err
	}
	return s.chat.Send(ctx, channel, msg)
}

// ReceiveChatMessages returns the messages of channel, oldest first.
func (s *Service) ReceiveChatMessages(ctx context.Context, channel string) ([]model.ChatMessage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.chat.Receive(ctx, channel)
}

func (s *Service) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	if err := s.ready(); err != nil {
		return model.Profile{}, err
	}
	return s.profiles.Get(ctx, id)
}

func (s *Service) SaveProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	if err := s.ready(); err != nil {
		return model.Profile{}, err
	}
	return s.profiles.Save(ctx, p)
}

func (s *Service) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.profiles.List(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":               s.started,
		"leaderboardCapacity":   s.capacity,
		"presenceWindowSeconds": int64(s.presenceWindow.Seconds()),
		"couponMaxAttempts":     s.maxAttempts,
		"cacheEnabled":          s.cacheSizeMB > 0,
	}
	if s.backend != nil {
		stats["backend"] = s.backend.Name()
	}
	return stats
}
