// Command ludus runs the game backend and its admin tasks.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/ludus/internal/app"
	"github.com/okian/ludus/internal/config"
	"github.com/okian/ludus/pkg/logger"
	"github.com/okian/ludus/pkg/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ludus",
		Short:         "Learning game backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvConfigPath), "YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newCouponCmd(&configPath))
	root.AddCommand(newLeaderboardCmd(&configPath))
	root.AddCommand(newLoadtestCmd())
	return root
}

// setup loads configuration and initializes the global logger on w.
func setup(ctx context.Context, configPath string, w io.Writer) (*config.Config, error) {
	cfg, err := config.LoadFile(ctx, configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.WithWriter(w), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	metrics.Init(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
		metrics.WithHistogramBuckets(cfg.Metrics.Buckets),
		metrics.WithConstLabels(cfg.Metrics.ConstLabels),
	)
	return cfg, nil
}

// startService opens the configured backend and starts a service over it.
func startService(ctx context.Context, cfg *config.Config) (*service.Service, error) {
	backend, err := service.OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithBackend(backend),
		service.WithLogger(logger.Get()),
		service.WithLeaderboardCapacity(cfg.Leaderboard.Capacity),
		service.WithPresenceWindow(cfg.Presence.Window),
		service.WithCouponMaxAttempts(cfg.Coupon.MaxAttempts),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, service.WithLeaderboardCache(cfg.Cache.SizeMB, cfg.Cache.TTL))
	}

	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return svc, nil
}
