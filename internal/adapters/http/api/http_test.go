package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/smartystreets/goconvey/convey"

	service "github.com/okian/ludus/internal/app"
	"github.com/okian/ludus/internal/domain/coupon"
	"github.com/okian/ludus/internal/domain/leaderboard"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fixture struct {
	t      *testing.T
	router http.Handler
	svc    *service.Service
}

func newFixture(t *testing.T, now time.Time) *fixture {
	svc := service.New(
		service.WithLeaderboardCapacity(2),
		service.WithClock(func() time.Time { return now }),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv := NewServer(svc, WithVersion("test"))
	return &fixture{t: t, router: srv.Router(context.Background()), svc: svc}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	return v
}

func performance(subject string, pct uint8) map[string]any {
	return map[string]any{
		"game_path_id":           "path-1",
		"profile_name":           subject,
		"challenges_performance": [][]any{{"c1", pct, 1000}},
		"total_challenges":       1,
		"performance_percentage": pct,
	}
}

func TestLeaderboardRoutes(t *testing.T) {
	convey.Convey("Given a server with a leaderboard of capacity 2", t, func() {
		f := newFixture(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		defer f.svc.Stop()

		convey.Convey("When two records are submitted to a namespace", func() {
			w1 := f.do(http.MethodPost, "/api/v1/performance-record/math", performance("ana", 80))
			w2 := f.do(http.MethodPost, "/api/v1/performance-record/math", performance("bo", 90))

			convey.So(w1.Code, convey.ShouldEqual, http.StatusCreated)
			convey.So(w2.Code, convey.ShouldEqual, http.StatusCreated)
			convey.So(decode[submissionResponse](w1).Outcome, convey.ShouldEqual, leaderboard.OutcomeAccepted)

			convey.Convey("Then the leaderboard lists them best first", func() {
				w := f.do(http.MethodGet, "/api/v1/leaderboard/math", nil)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

				resp := decode[leaderboardResponse](w)
				convey.So(resp.Namespace, convey.ShouldEqual, "math")
				convey.So(resp.Records, convey.ShouldHaveLength, 2)
				convey.So(resp.Records[0].SubjectID, convey.ShouldEqual, "bo")
				convey.So(resp.Records[0].Rank, convey.ShouldEqual, 1)
				convey.So(resp.Records[1].Rank, convey.ShouldEqual, 2)
			})

			convey.Convey("Then a weaker record is refused with 409", func() {
				w := f.do(http.MethodPost, "/api/v1/performance-record/math", performance("cy", 10))
				convey.So(w.Code, convey.ShouldEqual, http.StatusConflict)
				convey.So(decode[errorResponse](w).Code, convey.ShouldEqual, "capacity_exceeded")
			})

			convey.Convey("Then a stronger record evicts the weakest", func() {
				w := f.do(http.MethodPost, "/api/v1/performance-record/math", performance("cy", 95))
				convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)
				sub := decode[submissionResponse](w)
				convey.So(sub.Outcome, convey.ShouldEqual, leaderboard.OutcomeEvicted)
				convey.So(sub.Evicted, convey.ShouldHaveLength, 1)
			})

			convey.Convey("Then the global leaderboard is untouched", func() {
				resp := decode[leaderboardResponse](f.do(http.MethodGet, "/api/v1/leaderboard", nil))
				convey.So(resp.Namespace, convey.ShouldEqual, "global")
				convey.So(resp.Records, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the body is malformed", func() {
			convey.So(f.do(http.MethodPost, "/api/v1/performance-record", "{").Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(f.do(http.MethodPost, "/api/v1/performance-record", performance("", 50)).Code, convey.ShouldEqual, http.StatusBadRequest)

			bad := performance("ana", 50)
			bad["challenges_performance"] = [][]any{{"c1"}}
			convey.So(f.do(http.MethodPost, "/api/v1/performance-record", bad).Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestPresenceRoutes(t *testing.T) {
	convey.Convey("Given a server", t, func() {
		f := newFixture(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		defer f.svc.Stop()

		convey.Convey("When presence is recorded twice", func() {
			f.do(http.MethodPost, "/api/v1/challenges/c1/presence/record", nil)
			w := f.do(http.MethodPost, "/api/v1/challenges/c1/presence/record", nil)

			convey.Convey("Then both events are counted", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode[presenceResponse](w).Count, convey.ShouldEqual, 2)

				got := decode[presenceResponse](f.do(http.MethodGet, "/api/v1/challenges/c1/presence", nil))
				convey.So(got.Count, convey.ShouldEqual, 2)
				convey.So(got.ChallengeID, convey.ShouldEqual, "c1")
			})

			convey.Convey("Then other challenges are unaffected", func() {
				got := decode[presenceResponse](f.do(http.MethodGet, "/api/v1/challenges/c2/presence", nil))
				convey.So(got.Count, convey.ShouldEqual, 0)
			})
		})
	})
}

func TestCouponRoutes(t *testing.T) {
	convey.Convey("Given a server with a coupon", t, func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		f := newFixture(t, now)
		defer f.svc.Stop()

		create := map[string]any{
			"code":            "SPRING",
			"challenge_ids":   []string{"c1"},
			"uses_remaining":  1,
			"expiration_date": now.Add(time.Hour),
		}
		convey.So(f.do(http.MethodPost, "/api/v1/coupons", create).Code, convey.ShouldEqual, http.StatusCreated)

		convey.Convey("Then creating it again conflicts", func() {
			w := f.do(http.MethodPost, "/api/v1/coupons", create)
			convey.So(w.Code, convey.ShouldEqual, http.StatusConflict)
			convey.So(decode[errorResponse](w).Code, convey.ShouldEqual, "already_exists")
		})

		convey.Convey("Then a request without a code is refused", func() {
			w := f.do(http.MethodPost, "/api/v1/coupons", map[string]any{"challenge_ids": []string{"c1"}})
			convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("Then it can be read and listed", func() {
			got := decode[couponResponse](f.do(http.MethodGet, "/api/v1/coupons/SPRING", nil))
			convey.So(got.Coupon.UsesRemaining, convey.ShouldEqual, 1)

			list := decode[couponsResponse](f.do(http.MethodGet, "/api/v1/coupons", nil))
			convey.So(list.Coupons, convey.ShouldHaveLength, 1)
		})

		convey.Convey("When it is validated and redeemed", func() {
			valid := decode[validateResponse](f.do(http.MethodGet, "/api/v1/coupons/SPRING/validate/c1", nil))
			convey.So(valid.Valid, convey.ShouldBeTrue)

			w := f.do(http.MethodPost, "/api/v1/coupons/SPRING/redeem/c1", nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(decode[couponResponse](w).Coupon.UsesRemaining, convey.ShouldEqual, 0)

			convey.Convey("Then the refusals map to distinct statuses", func() {
				cases := []struct {
					path   string
					status int
					code   string
				}{
					{"/api/v1/coupons/SPRING/redeem/c1", http.StatusConflict, "exhausted"},
					{"/api/v1/coupons/SPRING/redeem/c9", http.StatusForbidden, "invalid_challenge"},
					{"/api/v1/coupons/NOPE/redeem/c1", http.StatusNotFound, "not_found"},
				}
				for _, tc := range cases {
					w := f.do(http.MethodPost, tc.path, nil)
					convey.So(w.Code, convey.ShouldEqual, tc.status)
					convey.So(decode[errorResponse](w).Code, convey.ShouldEqual, tc.code)
				}

				valid := decode[validateResponse](f.do(http.MethodGet, "/api/v1/coupons/SPRING/validate/c1", nil))
				convey.So(valid.Valid, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a coupon is already expired", func() {
			expired := map[string]any{
				"code":            "OLD",
				"challenge_ids":   []string{"c1"},
				"uses_remaining":  3,
				"expiration_date": now.Add(-time.Minute),
			}
			f.do(http.MethodPost, "/api/v1/coupons", expired)

			convey.Convey("Then redeeming it is gone", func() {
				w := f.do(http.MethodPost, "/api/v1/coupons/OLD/redeem/c1", nil)
				convey.So(w.Code, convey.ShouldEqual, http.StatusGone)
			})
		})
	})
}

func TestReviewAndProfileRoutes(t *testing.T) {
	convey.Convey("Given a server", t, func() {
		f := newFixture(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		defer f.svc.Stop()

		convey.Convey("When reviews are posted", func() {
			for _, rating := range []int{5, 2} {
				w := f.do(http.MethodPost, "/api/v1/reviews", map[string]any{"challenge_id": "c1", "rating": rating})
				convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)
			}

			convey.Convey("Then they are listed and averaged", func() {
				list := decode[reviewsResponse](f.do(http.MethodGet, "/api/v1/reviews/c1", nil))
				convey.So(list.Reviews, convey.ShouldHaveLength, 2)

				all := decode[reviewsResponse](f.do(http.MethodGet, "/api/v1/reviews", nil))
				convey.So(all.Reviews, convey.ShouldHaveLength, 2)

				avg := decode[averageResponse](f.do(http.MethodGet, "/api/v1/reviews/c1/average", nil))
				convey.So(avg.Average, convey.ShouldAlmostEqual, 3.5)
			})

			convey.Convey("Then out-of-range ratings are refused", func() {
				for _, rating := range []int{0, 6} {
					w := f.do(http.MethodPost, "/api/v1/reviews", map[string]any{"challenge_id": "c1", "rating": rating})
					convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
				}
			})
		})

		convey.Convey("When a profile is saved", func() {
			w := f.do(http.MethodPut, "/api/v1/profiles/p1", map[string]any{"name": "Ana", "xp": 40})
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

			convey.Convey("Then it can be read back", func() {
				got := decode[profileResponse](f.do(http.MethodGet, "/api/v1/profiles/p1", nil))
				convey.So(got.Profile.Name, convey.ShouldEqual, "Ana")
				convey.So(got.Profile.XP, convey.ShouldEqual, 40)

				list := decode[profilesResponse](f.do(http.MethodGet, "/api/v1/profiles", nil))
				convey.So(list.Profiles, convey.ShouldHaveLength, 1)
			})

			convey.Convey("Then unknown profiles are 404", func() {
				convey.So(f.do(http.MethodGet, "/api/v1/profiles/nobody", nil).Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	convey.Convey("Given a server", t, func() {
		f := newFixture(t, time.Now())

		convey.Convey("Then /healthz reports ok", func() {
			w := f.do(http.MethodGet, "/healthz", nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			resp := decode[healthResponse](w)
			convey.So(resp.Status, convey.ShouldEqual, "ok")
			convey.So(resp.Version, convey.ShouldEqual, "test")
			f.svc.Stop()
		})

		convey.Convey("Then /stats exposes service stats", func() {
			resp := decode[map[string]any](f.do(http.MethodGet, "/stats", nil))
			convey.So(resp["started"], convey.ShouldEqual, true)
			f.svc.Stop()
		})

		convey.Convey("Then /metrics serves the registry", func() {
			f.do(http.MethodGet, "/healthz", nil)
			w := f.do(http.MethodGet, "/metrics", nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "http_requests_total")
			f.svc.Stop()
		})

		convey.Convey("Then a stopped service fails health", func() {
			f.svc.Stop()
			w := f.do(http.MethodGet, "/healthz", nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})

		convey.Convey("Then wrong methods are refused", func() {
			w := f.do(http.MethodDelete, "/api/v1/coupons", nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusMethodNotAllowed)
			f.svc.Stop()
		})
	})
}

func TestStatusFor(t *testing.T) {
	convey.Convey("Given wrapped domain errors", t, func() {
		cases := []struct {
			err    error
			status int
		}{
			{fmt.Errorf("submit: %w", leaderboard.ErrCapacityExceeded), http.StatusConflict},
			{fmt.Errorf("redeem: %w", coupon.ErrExpired), http.StatusGone},
			{fmt.Errorf("decode: %w", model.ErrMalformedChallenge), http.StatusBadRequest},
			{service.ErrNotStarted, http.StatusServiceUnavailable},
			{errors.New("disk on fire"), http.StatusInternalServerError},
		}

		convey.Convey("Then each maps to its status", func() {
			for _, tc := range cases {
				status, _ := statusFor(tc.err)
				convey.So(status, convey.ShouldEqual, tc.status)
			}
		})
	})
}

func TestChatRoutes(t *testing.T) {
	convey.Convey("Given a server", t, func() {
		f := newFixture(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		defer f.svc.Stop()

		convey.Convey("When two messages are sent to a channel", func() {
			for _, content := range []string{"hi", "there"} {
				w := f.do(http.MethodPost, "/api/v1/chat/send/lobby", map[string]any{"sender": "ana", "content": content})
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				sent := decode[chatMessageResponse](w)
				convey.So(sent.Message.ID, convey.ShouldNotBeEmpty)
			}

			convey.Convey("Then both are received", func() {
				got := decode[chatMessagesResponse](f.do(http.MethodGet, "/api/v1/chat/receive/lobby", nil))
				convey.So(got.Messages, convey.ShouldHaveLength, 2)
			})

			convey.Convey("Then other channels stay empty", func() {
				w := f.do(http.MethodGet, "/api/v1/chat/receive/elsewhere", nil)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode[chatMessagesResponse](w).Messages, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When a message has no sender", func() {
			w := f.do(http.MethodPost, "/api/v1/chat/send/lobby", map[string]any{"content": "hi"})
			convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}
