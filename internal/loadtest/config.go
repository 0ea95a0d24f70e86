// Package loadtest drives a running server over HTTP with concurrent
// submissions and redemptions, then checks the resulting state.
package loadtest

import (
	"runtime"
	"time"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Namespace   string        // Leaderboard namespace to submit into
	Submissions int           // Performance records to submit
	Capacity    int           // Expected leaderboard capacity
	Redeemers   int           // Concurrent redemption attempts
	CouponUses  uint32        // Uses granted to the test coupon
	Presence    int           // Presence events to record
	Workers     int           // Concurrent workers
	Timeout     time.Duration // HTTP request timeout
	Seed        uint64        // Seed for generated percentages
}

// DefaultConfig returns a config for a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:9080",
		Namespace:   "loadtest",
		Submissions: 1000,
		Capacity:    10,
		Redeemers:   64,
		CouponUses:  5,
		Presence:    100,
		Workers:     runtime.NumCPU() * workerMultiplier,
		Timeout:     30 * time.Second,
		Seed:        1,
	}
}

const workerMultiplier = 2

// Stats holds run statistics.
type Stats struct {
	Accepted    int64
	Evicted     int64
	Duplicate   int64
	Rejected    int64
	Failed      int64
	Redeemed    int64
	Refused     int64
	Presence    int
	Leaderboard int
	Duration    time.Duration
}
