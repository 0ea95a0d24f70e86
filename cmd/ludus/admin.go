package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/ludus/internal/domain/model"
)

func newCouponCmd(configPath *string) *cobra.Command {
	coupons := &cobra.Command{Use: "coupon", Short: "Manage coupons"}

	var (
		code       string
		challenges []string
		uses       uint32
		expires    string
	)
	create := &cobra.Command{
		Use:   "create --code <code> --challenge <id>...",
		Short: "Create a coupon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(code) == "" {
				return fmt.Errorf("--code is required")
			}
			exp, err := parseExpiry(expires, time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, err := setup(ctx, *configPath, os.Stderr)
			if err != nil {
				return err
			}
			svc, err := startService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Stop()

			c, err := svc.CreateCoupon(ctx, model.Coupon{
				Code:           code,
				ChallengeIDs:   challenges,
				UsesRemaining:  uses,
				ExpirationDate: exp,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s uses=%d expires=%s\n",
				c.Code, c.UsesRemaining, c.ExpirationDate.Format(time.RFC3339))
			return nil
		},
	}
	create.Flags().StringVar(&code, "code", "", "coupon code")
	create.Flags().StringSliceVar(&challenges, "challenge", nil, "challenge ids the coupon applies to")
	create.Flags().Uint32Var(&uses, "uses", 1, "number of redemptions")
	create.Flags().StringVar(&expires, "expires", "720h", "RFC3339 time or duration from now")

	list := &cobra.Command{
		Use:   "list",
		Short: "List coupons",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx, *configPath, os.Stderr)
			if err != nil {
				return err
			}
			svc, err := startService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Stop()

			all, err := svc.ListCoupons(ctx)
			if err != nil {
				return err
			}
			if len(all) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no coupons")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "CODE\tUSES\tEXPIRES\tCHALLENGES")
			for _, c := range all {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.Code, c.UsesRemaining,
					c.ExpirationDate.Format(time.RFC3339), strings.Join(c.ChallengeIDs, ","))
			}
			return tw.Flush()
		},
	}

	coupons.AddCommand(create, list)
	return coupons
}

func newLeaderboardCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard [namespace]",
		Short: "Print a leaderboard",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := ""
			if len(args) == 1 {
				ns = args[0]
			}

			ctx := cmd.Context()
			cfg, err := setup(ctx, *configPath, os.Stderr)
			if err != nil {
				return err
			}
			svc, err := startService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Stop()

			records, err := svc.GetLeaderboard(ctx, ns)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "empty leaderboard")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "RANK\tPROFILE\tPERCENT\tDATE")
			for _, r := range records {
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", r.Rank, r.SubjectID, r.Percentage, r.RecordedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

// parseExpiry accepts an RFC3339 timestamp or a duration relative to now.
func parseExpiry(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --expires %q: want RFC3339 or duration", s)
	}
	return now.Add(d).UTC(), nil
}
