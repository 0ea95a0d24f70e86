package leaderboard_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/okian/ludus/internal/adapters/cache"
	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/internal/adapters/repository/memory"
	"github.com/okian/ludus/internal/adapters/repository/redisstore"
	"github.com/okian/ludus/internal/domain/leaderboard"
	"github.com/okian/ludus/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func record(subject string, pct uint8, at time.Time) model.PerformanceRecord {
	return model.PerformanceRecord{
		GamePathID:      "path",
		SubjectID:       subject,
		Detail:          []model.ChallengePerformance{{ChallengeID: "c1", Percentage: pct, DurationMs: 1000}},
		TotalChallenges: 1,
		Percentage:      pct,
		RecordedAt:      at,
	}
}

func percentages(rows []model.RankedRecord) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = int(r.Percentage)
	}
	return out
}

type failingStore struct {
	*memory.Store
}

func (failingStore) Entries(context.Context, string) ([]repository.Entry, error) {
	return nil, errors.New("connection refused")
}

func TestSubmitEvictsWorst(t *testing.T) {
	Convey("Given a namespace holding percentages 100 down to 91", t, func() {
		ctx := context.Background()
		m := leaderboard.New(memory.New())
		for i := 0; i < 10; i++ {
			_, err := m.Submit(ctx, "n", record(fmt.Sprintf("p%d", i), uint8(100-i), base))
			So(err, ShouldBeNil)
		}

		Convey("When a record with 95 arrives", func() {
			sub, err := m.Submit(ctx, "n", record("newcomer", 95, base))

			Convey("Then it is accepted and 91 is evicted", func() {
				So(err, ShouldBeNil)
				So(sub.Outcome, ShouldEqual, leaderboard.OutcomeEvicted)
				So(sub.Evicted, ShouldHaveLength, 1)

				rows, err := m.Leaderboard(ctx, "n")
				So(err, ShouldBeNil)
				So(percentages(rows), ShouldResemble, []int{100, 99, 98, 97, 96, 95, 95, 94, 93, 92})
			})

			Convey("And then a record with 50 arrives", func() {
				before, err := m.Leaderboard(ctx, "n")
				So(err, ShouldBeNil)

				_, err = m.Submit(ctx, "n", record("late", 50, base))

				Convey("Then it is rejected and the board is unchanged", func() {
					So(errors.Is(err, leaderboard.ErrCapacityExceeded), ShouldBeTrue)
					So(errors.Is(err, repository.ErrInfrastructure), ShouldBeFalse)
					after, err := m.Leaderboard(ctx, "n")
					So(err, ShouldBeNil)
					So(after, ShouldResemble, before)
				})
			})
		})
	})
}

func TestSubmitBelowCapacity(t *testing.T) {
	Convey("Given an empty namespace", t, func() {
		ctx := context.Background()
		m := leaderboard.New(memory.New(), leaderboard.WithClock(func() time.Time { return base }))

		Convey("When reading it", func() {
			rows, err := m.Leaderboard(ctx, "empty")
			Convey("Then it is an empty list, not an error", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
			})
		})

		Convey("When a low record is submitted", func() {
			sub, err := m.Submit(ctx, "n", record("a", 1, time.Time{}))
			Convey("Then it is stored and stamped with the clock", func() {
				So(err, ShouldBeNil)
				So(sub.Outcome, ShouldEqual, leaderboard.OutcomeAccepted)
				So(sub.Record.RecordedAt, ShouldEqual, base)
				So(sub.ID, ShouldHaveLength, 64)
			})
		})

		Convey("When the same record is submitted twice", func() {
			_, err := m.Submit(ctx, "n", record("a", 50, base))
			So(err, ShouldBeNil)
			sub, err := m.Submit(ctx, "n", record("a", 50, base))

			Convey("Then the second is a duplicate and nothing is added", func() {
				So(err, ShouldBeNil)
				So(sub.Outcome, ShouldEqual, leaderboard.OutcomeDuplicate)
				rows, _ := m.Leaderboard(ctx, "n")
				So(rows, ShouldHaveLength, 1)
			})
		})

		Convey("When an invalid record is submitted", func() {
			_, err := m.Submit(ctx, "n", record("", 50, base))
			Convey("Then it is refused before touching storage", func() {
				So(errors.Is(err, model.ErrMissingSubject), ShouldBeTrue)
			})
		})
	})
}

func TestTieBreak(t *testing.T) {
	Convey("Given a full board of two records", t, func() {
		ctx := context.Background()
		m := leaderboard.New(memory.New(), leaderboard.WithCapacity(2))
		_, err := m.Submit(ctx, "n", record("a", 80, base))
		So(err, ShouldBeNil)
		_, err = m.Submit(ctx, "n", record("b", 70, base))
		So(err, ShouldBeNil)

		Convey("When a record ties the worst on percentage and date", func() {
			_, err := m.Submit(ctx, "n", record("aaa", 70, base))
			Convey("Then the existing record is kept", func() {
				So(errors.Is(err, leaderboard.ErrCapacityExceeded), ShouldBeTrue)
				rows, _ := m.Leaderboard(ctx, "n")
				So(rows[1].SubjectID, ShouldEqual, "b")
			})
		})

		Convey("When a record ties on percentage but is more recent", func() {
			sub, err := m.Submit(ctx, "n", record("c", 70, base.Add(time.Minute)))
			Convey("Then the more recent record wins", func() {
				So(err, ShouldBeNil)
				So(sub.Outcome, ShouldEqual, leaderboard.OutcomeEvicted)
				rows, _ := m.Leaderboard(ctx, "n")
				So(rows[1].SubjectID, ShouldEqual, "c")
			})
		})

		Convey("When a record ties on percentage but is older", func() {
			_, err := m.Submit(ctx, "n", record("d", 70, base.Add(-time.Minute)))
			So(errors.Is(err, leaderboard.ErrCapacityExceeded), ShouldBeTrue)
		})
	})
}

func TestCapacityAndMonotonicity(t *testing.T) {
	Convey("Given a random stream of submissions", t, func() {
		ctx := context.Background()
		m := leaderboard.New(memory.New())
		rng := rand.New(rand.NewSource(42))

		var discarded []model.PerformanceRecord
		for i := 0; i < 200; i++ {
			rec := record(fmt.Sprintf("p%d", i), uint8(rng.Intn(101)), base.Add(time.Duration(rng.Intn(1000))*time.Second))
			sub, err := m.Submit(ctx, "n", rec)
			if errors.Is(err, leaderboard.ErrCapacityExceeded) {
				discarded = append(discarded, rec)
				continue
			}
			So(err, ShouldBeNil)
			rows, err := m.Leaderboard(ctx, "n")
			So(err, ShouldBeNil)
			So(len(rows), ShouldBeLessThanOrEqualTo, leaderboard.DefaultCapacity)
			if sub.Outcome == leaderboard.OutcomeEvicted {
				So(rows, ShouldHaveLength, leaderboard.DefaultCapacity)
			}
		}

		Convey("Then no discarded record outranks a retained one", func() {
			rows, err := m.Leaderboard(ctx, "n")
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, leaderboard.DefaultCapacity)
			worst := rows[len(rows)-1]
			for _, d := range discarded {
				better := d.Percentage > worst.Percentage ||
					(d.Percentage == worst.Percentage && d.RecordedAt.After(worst.RecordedAt))
				So(better, ShouldBeFalse)
			}
		})

		Convey("Then two reads without writes return the same board", func() {
			a, err := m.Leaderboard(ctx, "n")
			So(err, ShouldBeNil)
			b, err := m.Leaderboard(ctx, "n")
			So(err, ShouldBeNil)
			So(b, ShouldResemble, a)
		})
	})
}

func TestConcurrentSubmissions(t *testing.T) {
	Convey("Given many concurrent submitters on one namespace", t, func() {
		ctx := context.Background()
		m := leaderboard.New(memory.New())

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = m.Submit(ctx, "n", record(fmt.Sprintf("p%d", i), uint8(i+1), base))
			}(i)
		}
		wg.Wait()

		Convey("Then exactly the ten best remain", func() {
			rows, err := m.Leaderboard(ctx, "n")
			So(err, ShouldBeNil)
			So(percentages(rows), ShouldResemble, []int{50, 49, 48, 47, 46, 45, 44, 43, 42, 41})
		})
	})
}

func TestConcurrentSubmissionsAcrossClients(t *testing.T) {
	Convey("Given two maintainers on separate clients of one redis", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		maintainers := make([]*leaderboard.Maintainer, 2)
		for i := range maintainers {
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			store := redisstore.NewWithClient(client, redisstore.WithLockRetry(time.Millisecond))
			defer func() { _ = store.Close() }()
			maintainers[i] = leaderboard.New(store)
		}

		var wg sync.WaitGroup
		var failed atomic.Int64
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := maintainers[i%2].Submit(ctx, "n", record(fmt.Sprintf("p%d", i), uint8(i+1), base))
				if err != nil && !errors.Is(err, leaderboard.ErrCapacityExceeded) {
					failed.Add(1)
				}
			}(i)
		}
		wg.Wait()

		Convey("Then both see exactly the ten best", func() {
			So(failed.Load(), ShouldEqual, 0)
			want := []int{40, 39, 38, 37, 36, 35, 34, 33, 32, 31}
			for _, m := range maintainers {
				rows, err := m.Leaderboard(ctx, "n")
				So(err, ShouldBeNil)
				So(percentages(rows), ShouldResemble, want)
			}
			keys, err := mr.HKeys("performance_records:n")
			So(err, ShouldBeNil)
			So(keys, ShouldHaveLength, 10)
		})
	})
}

// pausingStore parks the first armed Entries call after it has read the
// collection, until release is closed.
type pausingStore struct {
	*memory.Store
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func (p *pausingStore) Entries(ctx context.Context, collection string) ([]repository.Entry, error) {
	entries, err := p.Store.Entries(ctx, collection)
	if p.armed.CompareAndSwap(true, false) {
		close(p.paused)
		<-p.release
	}
	return entries, err
}

func TestCacheFillRacingSubmit(t *testing.T) {
	Convey("Given a cached board and a read paused after loading", t, func() {
		ctx := context.Background()
		store := &pausingStore{Store: memory.New(), paused: make(chan struct{}), release: make(chan struct{})}
		m := leaderboard.New(store, leaderboard.WithCache(cache.New("leaderboard", 1)))
		_, err := m.Submit(ctx, "n", record("a", 50, base))
		So(err, ShouldBeNil)

		store.armed.Store(true)
		done := make(chan error, 1)
		go func() {
			_, err := m.Leaderboard(ctx, "n")
			done <- err
		}()
		<-store.paused

		Convey("When a submit is accepted before the read finishes", func() {
			_, err := m.Submit(ctx, "n", record("b", 90, base))
			So(err, ShouldBeNil)
			close(store.release)
			So(<-done, ShouldBeNil)

			Convey("Then later reads include the new record", func() {
				rows, err := m.Leaderboard(ctx, "n")
				So(err, ShouldBeNil)
				So(percentages(rows), ShouldResemble, []int{90, 50})
			})
		})
	})
}

func TestRanksAndCache(t *testing.T) {
	Convey("Given records sharing percentages and a read cache", t, func() {
		ctx := context.Background()
		m := leaderboard.New(memory.New(), leaderboard.WithCache(cache.New("leaderboard", 1)))
		for i, pct := range []uint8{90, 90, 80, 70, 70} {
			_, err := m.Submit(ctx, "n", record(fmt.Sprintf("p%d", i), pct, base.Add(time.Duration(i)*time.Second)))
			So(err, ShouldBeNil)
		}

		rows, err := m.Leaderboard(ctx, "n")
		So(err, ShouldBeNil)

		Convey("Then equal percentages share a dense rank", func() {
			ranks := make([]int, len(rows))
			for i, r := range rows {
				ranks[i] = r.Rank
			}
			So(ranks, ShouldResemble, []int{1, 1, 2, 3, 3})
			So(rows[0].SubjectID, ShouldEqual, "p1")
		})

		Convey("Then a submission invalidates the cached board", func() {
			_, err := m.Submit(ctx, "n", record("top", 100, base))
			So(err, ShouldBeNil)
			again, err := m.Leaderboard(ctx, "n")
			So(err, ShouldBeNil)
			So(again, ShouldHaveLength, 6)
			So(again[0].SubjectID, ShouldEqual, "top")
		})
	})
}

func TestLegacyMigration(t *testing.T) {
	Convey("Given a legacy record stored under an arbitrary key", t, func() {
		ctx := context.Background()
		store := memory.New()
		legacy := []byte(`{"game_path_id":"path","profile_name":"old","challenges_performance":[["c1",60]],` +
			`"total_challenges":1,"performance_percentage":60,"date":"2024-01-01T00:00:00Z"}`)
		So(store.Put(ctx, "performance_records:n", "0", legacy), ShouldBeNil)
		m := leaderboard.New(store)

		Convey("When the board is read", func() {
			rows, err := m.Leaderboard(ctx, "n")

			Convey("Then the record is shown with the default duration and storage is untouched", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Detail[0].DurationMs, ShouldEqual, 3600000)
				raw, err := store.Get(ctx, "performance_records:n", "0")
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, string(legacy))
			})
		})

		Convey("When a submission takes the namespace lock", func() {
			_, err := m.Submit(ctx, "n", record("new", 70, base))
			So(err, ShouldBeNil)

			Convey("Then the legacy record is rewritten under its identity key", func() {
				_, err := store.Get(ctx, "performance_records:n", "0")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

				entries, err := store.Entries(ctx, "performance_records:n")
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				for _, e := range entries {
					_, isLegacy, err := model.DecodePerformanceRecord(e.Value)
					So(err, ShouldBeNil)
					So(isLegacy, ShouldBeFalse)
				}
			})
		})
	})
}

func TestSurplusTrimmed(t *testing.T) {
	Convey("Given a namespace holding more records than the capacity", t, func() {
		ctx := context.Background()
		store := memory.New()
		for i := 0; i < 12; i++ {
			rec := record(fmt.Sprintf("p%d", i), uint8(50+i), base)
			key, err := rec.Key()
			So(err, ShouldBeNil)
			data, err := rec.Encode()
			So(err, ShouldBeNil)
			So(store.Put(ctx, "performance_records:n", key, data), ShouldBeNil)
		}
		m := leaderboard.New(store)

		Convey("When a record that makes the cut is submitted", func() {
			sub, err := m.Submit(ctx, "n", record("best", 99, base))

			Convey("Then the board is trimmed to the capacity", func() {
				So(err, ShouldBeNil)
				So(sub.Evicted, ShouldHaveLength, 3)
				rows, err := m.Leaderboard(ctx, "n")
				So(err, ShouldBeNil)
				So(percentages(rows), ShouldResemble, []int{99, 61, 60, 59, 58, 57, 56, 55, 54, 53})
			})
		})

		Convey("When a record below the cut is submitted", func() {
			_, err := m.Submit(ctx, "n", record("low", 52, base))
			So(errors.Is(err, leaderboard.ErrCapacityExceeded), ShouldBeTrue)
		})
	})
}

func TestInfrastructureFailure(t *testing.T) {
	Convey("Given a store that cannot list entries", t, func() {
		m := leaderboard.New(failingStore{memory.New()})

		Convey("Then submissions and reads report an infrastructure error", func() {
			_, err := m.Submit(context.Background(), "n", record("a", 10, base))
			So(errors.Is(err, repository.ErrInfrastructure), ShouldBeTrue)
			So(errors.Is(err, leaderboard.ErrCapacityExceeded), ShouldBeFalse)
			So(err.Error(), ShouldContainSubstring, "performance_records:n")

			_, err = m.Leaderboard(context.Background(), "n")
			So(errors.Is(err, repository.ErrInfrastructure), ShouldBeTrue)
		})
	})
}
