package presence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/internal/adapters/repository/memory"
	"github.com/okian/ludus/internal/adapters/repository/redisstore"
	"github.com/okian/ludus/internal/domain/presence"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type brokenLog struct{}

func (brokenLog) Append(context.Context, string, string, time.Time) error {
	return errors.New("unavailable")
}
func (brokenLog) CountSince(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("unavailable")
}
func (brokenLog) TrimBefore(context.Context, string, time.Time) error { return nil }

func backends(t *testing.T) map[string]func() repository.EventLog {
	return map[string]func() repository.EventLog{
		"memory": func() repository.EventLog { return memory.New() },
		"redis": func() repository.EventLog {
			mr := miniredis.RunT(t)
			return redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		},
	}
}

func TestWindowBoundary(t *testing.T) {
	for name, newLog := range backends(t) {
		Convey("Given a presence counter on the "+name+" backend", t, func() {
			ctx := context.Background()
			clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
			c := presence.New(newLog(), presence.WithClock(clock.Now), presence.WithWindow(24*time.Hour))
			ns := "boundary"

			n, err := c.Record(ctx, ns)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			Convey("Then the event is live one millisecond later", func() {
				clock.Advance(time.Millisecond)
				n, err := c.Count(ctx, ns)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("Then the event is live just inside the window", func() {
				clock.Advance(24*time.Hour - time.Millisecond)
				n, err := c.Count(ctx, ns)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("Then the event is gone exactly one window later", func() {
				clock.Advance(24 * time.Hour)
				n, err := c.Count(ctx, ns)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})

			Convey("Then the event is gone after the window", func() {
				clock.Advance(24*time.Hour + time.Millisecond)
				n, err := c.Count(ctx, ns)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})

			Convey("Then a later record counts only live events", func() {
				clock.Advance(12 * time.Hour)
				n, err := c.Record(ctx, ns)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)

				clock.Advance(13 * time.Hour)
				n, err = c.Record(ctx, ns)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})
		})
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	Convey("Given two namespaces", t, func() {
		ctx := context.Background()
		c := presence.New(memory.New())

		_, err := c.Record(ctx, "a")
		So(err, ShouldBeNil)
		_, err = c.Record(ctx, "a")
		So(err, ShouldBeNil)
		_, err = c.Record(ctx, "b")
		So(err, ShouldBeNil)

		Convey("Then each counts only its own events", func() {
			a, _ := c.Count(ctx, "a")
			b, _ := c.Count(ctx, "b")
			none, _ := c.Count(ctx, "c")
			So(a, ShouldEqual, 2)
			So(b, ShouldEqual, 1)
			So(none, ShouldEqual, 0)
		})
	})
}

func TestConcurrentRecords(t *testing.T) {
	Convey("Given concurrent pings at the same instant", t, func() {
		ctx := context.Background()
		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		c := presence.New(memory.New(), presence.WithClock(func() time.Time { return at }))

		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = c.Record(ctx, "busy")
			}()
		}
		wg.Wait()

		Convey("Then none of them is lost", func() {
			n, err := c.Count(ctx, "busy")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 64)
		})
	})
}

func TestPresenceFailures(t *testing.T) {
	Convey("Given an event log that is down", t, func() {
		c := presence.New(brokenLog{})

		Convey("Then both operations report infrastructure errors", func() {
			_, err := c.Record(context.Background(), "a")
			So(errors.Is(err, repository.ErrInfrastructure), ShouldBeTrue)
			_, err = c.Count(context.Background(), "a")
			So(errors.Is(err, repository.ErrInfrastructure), ShouldBeTrue)
		})
	})
}

func TestDefaults(t *testing.T) {
	Convey("Given a counter without options", t, func() {
		So(presence.New(memory.New()).Window(), ShouldEqual, 24*time.Hour)
	})
}
