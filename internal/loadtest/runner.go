package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ludus/pkg/logger"
)

type submission struct {
	Subject    string  `json:"profile_name"`
	GamePath   string  `json:"game_path_id"`
	Detail     [][]any `json:"challenges_performance"`
	Total      int     `json:"total_challenges"`
	Percentage uint8   `json:"performance_percentage"`
	Date       string  `json:"date"`
}

type submitResult struct {
	Outcome string `json:"outcome"`
}

// Run executes the load run against cfg.BaseURL and verifies the result.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	log := logger.Get()
	start := time.Now()
	c := newClient(cfg.BaseURL, cfg.Timeout)
	stats := &Stats{}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("namespace", cfg.Namespace),
		logger.Int("submissions", cfg.Submissions),
		logger.Int("redeemers", cfg.Redeemers),
		logger.Int("workers", cfg.Workers))

	if status, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil || status != http.StatusOK {
		return nil, fmt.Errorf("service health check failed: status=%d: %w", status, err)
	}

	subs := generate(cfg)
	best := uint8(0)
	for _, s := range subs {
		best = max(best, s.Percentage)
	}
	submitAll(ctx, c, cfg, subs, stats)

	code := "LOAD-" + uuid.NewString()[:8]
	if err := redeemAll(ctx, c, cfg, code, stats); err != nil {
		return nil, err
	}

	for range cfg.Presence {
		if _, err := c.do(ctx, http.MethodPost, "/api/v1/challenges/"+url.PathEscape(cfg.Namespace)+"/presence/record", nil, nil); err != nil {
			return nil, fmt.Errorf("record presence: %w", err)
		}
	}

	err := verify(ctx, c, cfg, best, stats)
	stats.Duration = time.Since(start)

	log.Info(ctx, "load run finished",
		logger.Int64("accepted", stats.Accepted),
		logger.Int64("evicted", stats.Evicted),
		logger.Int64("duplicate", stats.Duplicate),
		logger.Int64("rejected", stats.Rejected),
		logger.Int64("failed", stats.Failed),
		logger.Int64("redeemed", stats.Redeemed),
		logger.Int64("refused", stats.Refused),
		logger.Int("presence", stats.Presence),
		logger.Int("leaderboard", stats.Leaderboard),
		logger.Duration("duration", stats.Duration))
	return stats, err
}

// generate builds submissions with seeded percentages and distinct subjects.
func generate(cfg Config) []submission {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	base := time.Now().UTC()
	out := make([]submission, cfg.Submissions)
	for i := range out {
		pct := uint8(rng.IntN(101))
		out[i] = submission{
			Subject:    fmt.Sprintf("player-%05d", i),
			GamePath:   "load",
			Detail:     [][]any{{"c1", pct, rng.IntN(600_000)}},
			Total:      1,
			Percentage: pct,
			Date:       base.Add(time.Duration(i) * time.Millisecond).Format(time.RFC3339Nano),
		}
	}
	return out
}

// submitAll posts subs through a worker pool and tallies outcomes.
func submitAll(ctx context.Context, c *client, cfg Config, subs []submission, stats *Stats) {
	path := "/api/v1/performance-record/" + url.PathEscape(cfg.Namespace)
	jobs := make(chan submission, cfg.Workers*workerMultiplier)

	var wg sync.WaitGroup
	for range max(cfg.Workers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				var res submitResult
				status, err := c.do(ctx, http.MethodPost, path, s, &res)
				switch {
				case err != nil:
					atomic.AddInt64(&stats.Failed, 1)
				case status == http.StatusConflict:
					atomic.AddInt64(&stats.Rejected, 1)
				case res.Outcome == "evicted":
					atomic.AddInt64(&stats.Evicted, 1)
				case res.Outcome == "duplicate":
					atomic.AddInt64(&stats.Duplicate, 1)
				case status == http.StatusCreated:
					atomic.AddInt64(&stats.Accepted, 1)
				default:
					atomic.AddInt64(&stats.Failed, 1)
				}
			}
		}()
	}

feed:
	for _, s := range subs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- s:
		}
	}
	close(jobs)
	wg.Wait()
}

// redeemAll creates a coupon and races cfg.Redeemers redemptions against it.
func redeemAll(ctx context.Context, c *client, cfg Config, code string, stats *Stats) error {
	create := map[string]any{
		"code":            code,
		"challenge_ids":   []string{cfg.Namespace},
		"uses_remaining":  cfg.CouponUses,
		"expiration_date": time.Now().Add(time.Hour).UTC(),
	}
	if status, err := c.do(ctx, http.MethodPost, "/api/v1/coupons", create, nil); err != nil || status != http.StatusCreated {
		return fmt.Errorf("create coupon: status=%d: %w", status, err)
	}

	path := "/api/v1/coupons/" + url.PathEscape(code) + "/redeem/" + url.PathEscape(cfg.Namespace)
	var wg sync.WaitGroup
	for range cfg.Redeemers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := c.do(ctx, http.MethodPost, path, nil, nil)
			switch {
			case err == nil && status == http.StatusOK:
				atomic.AddInt64(&stats.Redeemed, 1)
			case err == nil && status == http.StatusConflict:
				atomic.AddInt64(&stats.Refused, 1)
			default:
				atomic.AddInt64(&stats.Failed, 1)
			}
		}()
	}
	wg.Wait()
	return nil
}
