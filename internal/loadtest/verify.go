package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrVerification is returned when the server state is not what the run should have produced.
var ErrVerification = errors.New("verification failed")

type rankedEntry struct {
	Rank       int    `json:"rank"`
	ID         string `json:"id"`
	Subject    string `json:"profile_name"`
	Percentage uint8  `json:"performance_percentage"`
}

type leaderboardBody struct {
	Records []rankedEntry `json:"performance_records"`
}

type presenceBody struct {
	Count int `json:"count"`
}

// verify checks the leaderboard shape, the coupon use count and presence.
func verify(ctx context.Context, c *client, cfg Config, best uint8, stats *Stats) error {
	var errs []error

	var lb leaderboardBody
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/leaderboard/"+url.PathEscape(cfg.Namespace), nil, &lb); err != nil {
		return fmt.Errorf("get leaderboard: %w", err)
	}
	stats.Leaderboard = len(lb.Records)
	errs = append(errs, checkLeaderboard(lb.Records, cfg.Capacity, best, cfg.Submissions > 0))

	want := int64(min(uint64(cfg.CouponUses), uint64(cfg.Redeemers)))
	if stats.Redeemed != want {
		errs = append(errs, fmt.Errorf("%w: %d redemptions succeeded, want %d", ErrVerification, stats.Redeemed, want))
	}

	var p presenceBody
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/challenges/"+url.PathEscape(cfg.Namespace)+"/presence", nil, &p); err != nil {
		return fmt.Errorf("get presence: %w", err)
	}
	stats.Presence = p.Count
	if p.Count < cfg.Presence {
		errs = append(errs, fmt.Errorf("%w: presence %d below recorded %d", ErrVerification, p.Count, cfg.Presence))
	}

	return errors.Join(errs...)
}

// checkLeaderboard verifies size, order and dense ranks.
func checkLeaderboard(records []rankedEntry, capacity int, best uint8, nonEmpty bool) error {
	if capacity > 0 && len(records) > capacity {
		return fmt.Errorf("%w: leaderboard holds %d records, capacity %d", ErrVerification, len(records), capacity)
	}
	if len(records) == 0 {
		if nonEmpty {
			return fmt.Errorf("%w: empty leaderboard", ErrVerification)
		}
		return nil
	}
	if records[0].Percentage != best {
		return fmt.Errorf("%w: top percentage %d, best submitted %d", ErrVerification, records[0].Percentage, best)
	}
	if records[0].Rank != 1 {
		return fmt.Errorf("%w: first rank is %d", ErrVerification, records[0].Rank)
	}
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		switch {
		case cur.Percentage > prev.Percentage:
			return fmt.Errorf("%w: record %d out of order", ErrVerification, i)
		case cur.Percentage == prev.Percentage && cur.Rank != prev.Rank:
			return fmt.Errorf("%w: tie at %d has ranks %d and %d", ErrVerification, i, prev.Rank, cur.Rank)
		case cur.Percentage < prev.Percentage && cur.Rank != prev.Rank+1:
			return fmt.Errorf("%w: rank gap at %d", ErrVerification, i)
		}
	}
	return nil
}
