package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/ludus/internal/app"
	"github.com/okian/ludus/internal/config"
	"github.com/okian/ludus/internal/domain/coupon"
	"github.com/okian/ludus/internal/domain/leaderboard"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithLeaderboardCapacity(3))

		Convey("When used before Start", func() {
			_, err := svc.GetLeaderboard(context.Background(), "")
			Convey("Then it reports it is not started", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When started", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			defer svc.Stop()

			Convey("Then stats describe the wiring", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["backend"], ShouldEqual, "memory")
				So(stats["leaderboardCapacity"], ShouldEqual, 3)
				So(svc.Ping(context.Background()), ShouldBeNil)
			})

			Convey("Then starting twice is harmless", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
			})
		})
	})
}

func TestService_Operations(t *testing.T) {
	Convey("Given a started service with a fixed clock", t, func() {
		ctx := context.Background()
		now := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
		svc := service.New(
			service.WithLeaderboardCapacity(2),
			service.WithLeaderboardCache(1, time.Minute),
			service.WithClock(func() time.Time { return now }),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Then leaderboard submissions default to the global namespace", func() {
			for i, pct := range []uint8{60, 70} {
				_, err := svc.SubmitPerformance(ctx, "", model.PerformanceRecord{SubjectID: string(rune('a' + i)), Percentage: pct})
				So(err, ShouldBeNil)
			}
			_, err := svc.SubmitPerformance(ctx, "", model.PerformanceRecord{SubjectID: "c", Percentage: 10})
			So(errors.Is(err, leaderboard.ErrCapacityExceeded), ShouldBeTrue)

			rows, err := svc.GetLeaderboard(ctx, service.GlobalNamespace)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0].Percentage, ShouldEqual, 70)
			So(rows[0].RecordedAt, ShouldEqual, now)
		})

		Convey("Then presence counts pings", func() {
			n, err := svc.RecordPresence(ctx, "c1")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			n, err = svc.GetPresence(ctx, "c1")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("Then coupons go through their lifecycle", func() {
			_, err := svc.CreateCoupon(ctx, model.Coupon{
				Code: "C1", ChallengeIDs: []string{"x"}, UsesRemaining: 1, ExpirationDate: now.Add(time.Hour),
			})
			So(err, ShouldBeNil)

			ok, err := svc.ValidateCoupon(ctx, "C1", "x")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			_, err = svc.RedeemCoupon(ctx, "C1", "x")
			So(err, ShouldBeNil)
			_, err = svc.RedeemCoupon(ctx, "C1", "x")
			So(errors.Is(err, coupon.ErrExhausted), ShouldBeTrue)

			list, err := svc.ListCoupons(ctx)
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 1)
			got, err := svc.GetCoupon(ctx, "C1")
			So(err, ShouldBeNil)
			So(got.UsesRemaining, ShouldEqual, 0)
		})

		Convey("Then reviews and profiles are stored", func() {
			_, err := svc.SubmitReview(ctx, model.Review{ChallengeID: "c1", Rating: 4})
			So(err, ShouldBeNil)
			avg, err := svc.GetAverageRating(ctx, "c1")
			So(err, ShouldBeNil)
			So(avg, ShouldEqual, 4.0)
			all, err := svc.GetAllReviews(ctx)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 1)
			byChallenge, err := svc.GetReviews(ctx, "c1")
			So(err, ShouldBeNil)
			So(byChallenge, ShouldHaveLength, 1)

			_, err = svc.SaveProfile(ctx, model.Profile{ID: "p1", Name: "P"})
			So(err, ShouldBeNil)
			p, err := svc.GetProfile(ctx, "p1")
			So(err, ShouldBeNil)
			So(p.Name, ShouldEqual, "P")
			profiles, err := svc.ListProfiles(ctx)
			So(err, ShouldBeNil)
			So(profiles, ShouldHaveLength, 1)

			sent, err := svc.SendChatMessage(ctx, "lobby", model.ChatMessage{Sender: "p1", Content: "gg"})
			So(err, ShouldBeNil)
			So(sent.ID, ShouldNotBeEmpty)
			msgs, err := svc.ReceiveChatMessages(ctx, "lobby")
			So(err, ShouldBeNil)
			So(msgs, ShouldHaveLength, 1)
		})
	})
}

func TestOpenBackend(t *testing.T) {
	Convey("Given configs for each backend", t, func() {
		ctx := context.Background()

		Convey("When opening a compressed sqlite backend", func() {
			cfg := config.New(ctx)
			cfg.Backend = "sqlite"
			cfg.SQLite.Path = t.TempDir() + "/ludus.db"
			cfg.Compression = "zstd"

			b, err := service.OpenBackend(ctx, cfg)
			So(err, ShouldBeNil)
			defer func() { _ = b.Close() }()

			Convey("Then the name reflects the stack", func() {
				So(b.Name(), ShouldEqual, "sqlite+zstd")
			})

			Convey("Then a service runs on it", func() {
				svc := service.New(service.WithBackend(b))
				So(svc.Start(ctx), ShouldBeNil)
				_, err := svc.SaveProfile(ctx, model.Profile{ID: "p"})
				So(err, ShouldBeNil)
				p, err := svc.GetProfile(ctx, "p")
				So(err, ShouldBeNil)
				So(p.ID, ShouldEqual, "p")
			})
		})

		Convey("When the redis server is unreachable", func() {
			cfg := config.New(ctx)
			cfg.Backend = "redis"
			cfg.Redis.Addr = "127.0.0.1:1"
			shortCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_, err := service.OpenBackend(shortCtx, cfg)
			So(err, ShouldNotBeNil)
		})

		Convey("When the backend is unknown", func() {
			cfg := config.New(ctx)
			cfg.Backend = "etcd"
			_, err := service.OpenBackend(ctx, cfg)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
