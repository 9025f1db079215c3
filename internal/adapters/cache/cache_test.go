package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cache "github.com/immodesk/leadengine/internal/adapters/cache"
	"github.com/immodesk/leadengine/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore() (*cache.MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore(
		cache.WithClock(clock.Now),
		cache.WithSweepInterval(time.Hour),
	)
	return store, clock
}

func TestMemoryStore_GetSet(t *testing.T) {
	Convey("Given a memory store with a controllable clock", t, func() {
		store, clock := newStore()
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		Convey("When a key is set with a TTL", func() {
			store.Set(ctx, "lead:1", "scored", time.Minute)

			Convey("Then it is readable until the TTL passes", func() {
				value, ok := store.Get(ctx, "lead:1")
				So(ok, ShouldBeTrue)
				So(value, ShouldEqual, "scored")
				So(store.Exists(ctx, "lead:1"), ShouldBeTrue)

				clock.Advance(2 * time.Minute)
				_, ok = store.Get(ctx, "lead:1")
				So(ok, ShouldBeFalse)
				So(store.Exists(ctx, "lead:1"), ShouldBeFalse)
			})
		})

		Convey("When a key is overwritten", func() {
			store.Set(ctx, "k", "one", time.Minute)
			store.Set(ctx, "k", "two", time.Minute)

			Convey("Then the latest value wins", func() {
				value, _ := store.Get(ctx, "k")
				So(value, ShouldEqual, "two")
			})
		})

		Convey("When a key is deleted", func() {
			store.Set(ctx, "k", "v", time.Minute)
			store.Del(ctx, "k")

			Convey("Then it is gone", func() {
				_, ok := store.Get(ctx, "k")
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestMemoryStore_DelPattern(t *testing.T) {
	Convey("Given a store with namespaced keys", t, func() {
		store, _ := newStore()
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		store.Set(ctx, cache.LeadKey("1"), "a", time.Minute)
		store.Set(ctx, cache.LeadKey("2"), "b", time.Minute)
		store.Set(ctx, cache.TenantKey("t1"), "c", time.Minute)

		Convey("When deleting by glob", func() {
			removed := store.DelPattern(ctx, "lead:*")

			Convey("Then only matching keys are removed", func() {
				So(removed, ShouldEqual, 2)
				So(store.Exists(ctx, cache.LeadKey("1")), ShouldBeFalse)
				So(store.Exists(ctx, cache.TenantKey("t1")), ShouldBeTrue)
			})
		})

		Convey("When the pattern matches nothing", func() {
			So(store.DelPattern(ctx, "session:*"), ShouldEqual, 0)
		})
	})
}

func TestMemoryStore_Incr(t *testing.T) {
	Convey("Given a counter key", t, func() {
		store, clock := newStore()
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		Convey("When incrementing repeatedly", func() {
			So(store.Incr(ctx, "counter", time.Minute), ShouldEqual, 1)
			So(store.Incr(ctx, "counter", time.Minute), ShouldEqual, 2)
			So(store.Incr(ctx, "counter", time.Minute), ShouldEqual, 3)
		})

		Convey("When the TTL lapses between increments", func() {
			So(store.Incr(ctx, "counter", time.Minute), ShouldEqual, 1)
			clock.Advance(2 * time.Minute)

			Convey("Then the counter restarts", func() {
				So(store.Incr(ctx, "counter", time.Minute), ShouldEqual, 1)
			})
		})

		Convey("When increments keep arriving inside the window", func() {
			So(store.Incr(ctx, "counter", time.Minute), ShouldEqual, 1)
			clock.Advance(45 * time.Second)

			Convey("Then each increment slides the TTL forward", func() {
				So(store.Incr(ctx, "counter", time.Minute), ShouldEqual, 2)
				clock.Advance(45 * time.Second)
				So(store.Incr(ctx, "counter", time.Minute), ShouldEqual, 3)
			})
		})
	})
}

func TestMemoryStore_GetOrSet(t *testing.T) {
	Convey("Given a cache-aside fetcher", t, func() {
		store, _ := newStore()
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		calls := 0
		fetcher := func(ctx context.Context) (string, error) {
			calls++
			return "computed", nil
		}

		Convey("When the key is cold", func() {
			value, err := store.GetOrSet(ctx, "k", fetcher, time.Minute)

			Convey("Then the fetcher runs once and the result is cached", func() {
				So(err, ShouldBeNil)
				So(value, ShouldEqual, "computed")
				So(calls, ShouldEqual, 1)

				value, err = store.GetOrSet(ctx, "k", fetcher, time.Minute)
				So(err, ShouldBeNil)
				So(value, ShouldEqual, "computed")
				So(calls, ShouldEqual, 1)
			})
		})

		Convey("When the fetcher fails", func() {
			wantErr := errors.New("backend down")
			_, err := store.GetOrSet(ctx, "broken", func(ctx context.Context) (string, error) {
				return "", wantErr
			}, time.Minute)

			Convey("Then nothing is cached and the error surfaces", func() {
				So(errors.Is(err, wantErr), ShouldBeTrue)
				So(store.Exists(ctx, "broken"), ShouldBeFalse)
			})
		})
	})
}

func TestMemoryStore_CheckRateLimit(t *testing.T) {
	Convey("Given a limit of 3 requests per minute", t, func() {
		store, clock := newStore()
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		Convey("When a client stays under the limit", func() {
			for i := 0; i < 3; i++ {
				result := store.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute)
				So(result.Allowed, ShouldBeTrue)
				So(result.Remaining, ShouldEqual, int64(2-i))
			}
		})

		Convey("When the client exceeds the limit", func() {
			for i := 0; i < 3; i++ {
				store.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute)
			}
			result := store.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute)

			Convey("Then the request is denied with a reset hint", func() {
				So(result.Allowed, ShouldBeFalse)
				So(result.Remaining, ShouldEqual, 0)
				So(result.ResetInSeconds, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When clients are distinct", func() {
			for i := 0; i < 3; i++ {
				store.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute)
			}

			Convey("Then another client is unaffected", func() {
				So(store.CheckRateLimit(ctx, "10.0.0.2", 3, time.Minute).Allowed, ShouldBeTrue)
			})
		})

		Convey("When the window passes", func() {
			for i := 0; i < 4; i++ {
				store.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute)
			}
			clock.Advance(2 * time.Minute)

			Convey("Then the client is allowed again", func() {
				So(store.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute).Allowed, ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore_Stats(t *testing.T) {
	Convey("Given a store with mixed traffic", t, func() {
		store, _ := newStore()
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		store.Set(ctx, "a", "1", time.Minute)
		store.Get(ctx, "a")
		store.Get(ctx, "a")
		store.Get(ctx, "missing")
		store.Get(ctx, "missing")

		Convey("When reading stats", func() {
			stats := store.Stats()

			Convey("Then counters and hit rate line up", func() {
				So(stats.Hits, ShouldEqual, 2)
				So(stats.Misses, ShouldEqual, 2)
				So(stats.Sets, ShouldEqual, 1)
				So(stats.TotalKeys, ShouldEqual, 1)
				So(stats.HitRate, ShouldEqual, 50)
			})
		})
	})
}
