package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/ludus/internal/loadtest"
	"github.com/okian/ludus/pkg/logger"
)

func newLoadtestCmd() *cobra.Command {
	cfg := loadtest.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive a running server and verify leaderboard and coupon invariants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithWriter(os.Stderr)); err != nil {
				return err
			}
			_, err := loadtest.Run(cmd.Context(), cfg)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "leaderboard namespace and challenge id")
	f.IntVar(&cfg.Submissions, "submissions", cfg.Submissions, "performance records to submit")
	f.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "expected leaderboard capacity")
	f.IntVar(&cfg.Redeemers, "redeemers", cfg.Redeemers, "concurrent redemption attempts")
	f.Uint32Var(&cfg.CouponUses, "coupon-uses", cfg.CouponUses, "uses granted to the test coupon")
	f.IntVar(&cfg.Presence, "presence", cfg.Presence, "presence events to record")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "seed for generated percentages")
	return cmd
}
