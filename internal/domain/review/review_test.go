package review_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/ludus/internal/adapters/repository/memory"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/internal/domain/review"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAggregator(t *testing.T) {
	Convey("Given an aggregator with a ticking clock", t, func() {
		ctx := context.Background()
		tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		a := review.New(memory.New(), func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		})

		Convey("When no reviews exist", func() {
			avg, err := a.Average(ctx, "c1")
			So(err, ShouldBeNil)
			So(avg, ShouldEqual, 0.0)

			all, err := a.All(ctx)
			So(err, ShouldBeNil)
			So(all, ShouldBeEmpty)
		})

		Convey("When reviews are stored for two challenges", func() {
			for _, r := range []model.Review{
				{ChallengeID: "c1", Rating: 5, Comment: "great"},
				{ChallengeID: "c1", Rating: 2},
				{ChallengeID: "c2", Rating: 4},
			} {
				stored, err := a.Store(ctx, r)
				So(err, ShouldBeNil)
				So(stored.ID, ShouldNotBeBlank)
			}

			Convey("Then the average is the mean per challenge", func() {
				avg, err := a.Average(ctx, "c1")
				So(err, ShouldBeNil)
				So(avg, ShouldAlmostEqual, 3.5)
				avg, err = a.Average(ctx, "c2")
				So(err, ShouldBeNil)
				So(avg, ShouldAlmostEqual, 4.0)
			})

			Convey("Then reviews come back oldest first", func() {
				rs, err := a.ByChallenge(ctx, "c1")
				So(err, ShouldBeNil)
				So(rs, ShouldHaveLength, 2)
				So(rs[0].Comment, ShouldEqual, "great")
				So(rs[0].CreatedAt.Before(rs[1].CreatedAt), ShouldBeTrue)
			})

			Convey("Then All spans every challenge", func() {
				all, err := a.All(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 3)
				So(all[2].ChallengeID, ShouldEqual, "c2")
			})
		})

		Convey("When a review is invalid", func() {
			_, err := a.Store(ctx, model.Review{ChallengeID: "c1", Rating: 0})
			So(errors.Is(err, review.ErrInvalidRating), ShouldBeTrue)
			_, err = a.Store(ctx, model.Review{ChallengeID: "c1", Rating: 6})
			So(errors.Is(err, review.ErrInvalidRating), ShouldBeTrue)
			_, err = a.Store(ctx, model.Review{Rating: 3})
			So(errors.Is(err, review.ErrMissingChallenge), ShouldBeTrue)
		})
	})
}
