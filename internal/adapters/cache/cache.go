// Package cache provides a namespaced in-process key/value store with
// TTL expiry, cache-aside fetch and sliding-window rate limiting. It is
// an optimization layer only: a restart clears all state and callers
// must never treat it as a source of truth.
package cache

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/immodesk/leadengine/pkg/logger"
	"github.com/immodesk/leadengine/pkg/metrics"
)

// Default configuration.
const (
	defaultSweepInterval = 60 * time.Second
	defaultTTL           = 5 * time.Minute
)

// Store is the cache contract the engine components use.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Del(ctx context.Context, key string)
	// DelPattern removes all keys matching a glob pattern such as
	// "lead:*" and returns how many were removed.
	DelPattern(ctx context.Context, pattern string) int
	Exists(ctx context.Context, key string) bool
	// Incr atomically increments the counter at key, refreshing its
	// TTL, and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) int64
	// GetOrSet implements cache-aside: on miss the fetcher runs, its
	// result is stored, and the result is returned. The fetcher is
	// invoked at most once per miss but concurrent callers are not
	// deduplicated.
	GetOrSet(ctx context.Context, key string, fetcher func(ctx context.Context) (string, error), ttl time.Duration) (string, error)
	CheckRateLimit(ctx context.Context, identifier string, maxRequests int, window time.Duration) RateLimitResult
	Stats() Stats
}

// RateLimitResult reports the outcome of a sliding-window check.
type RateLimitResult struct {
	Allowed        bool  `json:"allowed"`
	Current        int64 `json:"current"`
	Remaining      int64 `json:"remaining"`
	ResetInSeconds int   `json:"reset_in_seconds"`
}

// Stats summarizes cache effectiveness for the /stats endpoint.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	TotalKeys int   `json:"total_keys"`
	HitRate   int   `json:"hit_rate"`
}

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore implements Store with a mutex-guarded map. Expiry is lazy
// on read plus an active sweep on a fixed interval.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]entry
	stats struct {
		hits, misses, sets, deletes int64
	}

	sweepInterval time.Duration
	clock         func() time.Time
	stopCh        chan struct{}
	stopOnce      sync.Once
	log           logger.Logger
}

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithSweepInterval sets how often the active sweep runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithClock overrides the time source. Tests use this to drive expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *MemoryStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewMemoryStore creates a store and starts its background sweep.
// Callers own the lifecycle and must Close it.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		items:         make(map[string]entry),
		sweepInterval: defaultSweepInterval,
		clock:         time.Now,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("cache")
	}
	go s.sweepLoop()
	return s
}

// Close stops the background sweep. Entries are left to the GC.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Get returns the live value at key, if any.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok || s.clock().After(e.expiresAt) {
		if ok {
			delete(s.items, key)
		}
		s.stats.misses++
		metrics.RecordCacheMiss()
		return "", false
	}
	s.stats.hits++
	metrics.RecordCacheHit()
	return e.value, true
}

// Set stores value at key for ttl. Non-positive ttl falls back to the
// default.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = entry{value: value, expiresAt: s.clock().Add(ttl)}
	s.stats.sets++
}

// Del removes key.
func (s *MemoryStore) Del(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	s.stats.deletes++
}

// DelPattern removes all keys matching the glob pattern.
func (s *MemoryStore) DelPattern(ctx context.Context, pattern string) int {
	re, err := globToRegexp(pattern)
	if err != nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key := range s.items {
		if re.MatchString(key) {
			delete(s.items, key)
			count++
		}
	}
	s.stats.deletes += int64(count)
	return count
}

// Exists reports whether key holds a live value.
func (s *MemoryStore) Exists(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return false
	}
	if s.clock().After(e.expiresAt) {
		delete(s.items, key)
		return false
	}
	return true
}

// Incr increments the counter at key, refreshing its TTL.
func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if e, ok := s.items[key]; ok && !s.clock().After(e.expiresAt) {
		current, _ = strconv.ParseInt(e.value, 10, 64)
	}
	current++
	s.items[key] = entry{value: strconv.FormatInt(current, 10), expiresAt: s.clock().Add(ttl)}
	s.stats.sets++
	return current
}

// GetOrSet returns the cached value or runs fetcher and stores its
// result.
func (s *MemoryStore) GetOrSet(ctx context.Context, key string, fetcher func(ctx context.Context) (string, error), ttl time.Duration) (string, error) {
	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}
	value, err := fetcher(ctx)
	if err != nil {
		return "", err
	}
	s.Set(ctx, key, value, ttl)
	return value, nil
}

// CheckRateLimit enforces a sliding window of maxRequests per window.
func (s *MemoryStore) CheckRateLimit(ctx context.Context, identifier string, maxRequests int, window time.Duration) RateLimitResult {
	key := RateLimitKey(identifier)
	current := s.Incr(ctx, key, window)

	resetIn := int(window.Seconds())
	s.mu.RLock()
	if e, ok := s.items[key]; ok {
		resetIn = int(e.expiresAt.Sub(s.clock()).Seconds() + 0.999)
	}
	s.mu.RUnlock()

	remaining := int64(maxRequests) - current
	if remaining < 0 {
		remaining = 0
	}
	allowed := current <= int64(maxRequests)
	if !allowed {
		metrics.RecordRateLimitDenial()
	}
	return RateLimitResult{
		Allowed:        allowed,
		Current:        current,
		Remaining:      remaining,
		ResetInSeconds: resetIn,
	}
}

// Stats returns a snapshot of cache effectiveness counters.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.stats.hits + s.stats.misses
	hitRate := 0
	if total > 0 {
		hitRate = int(float64(s.stats.hits) / float64(total) * 100)
	}
	return Stats{
		Hits:      s.stats.hits,
		Misses:    s.stats.misses,
		Sets:      s.stats.sets,
		Deletes:   s.stats.deletes,
		TotalKeys: len(s.items),
		HitRate:   hitRate,
	}
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep purges all entries whose expiry has passed. It only deletes
// already-expired entries, so it cannot race a fresh write with a new
// TTL.
func (s *MemoryStore) sweep() {
	now := s.clock()

	s.mu.Lock()
	reclaimed := 0
	for key, e := range s.items {
		if now.After(e.expiresAt) {
			delete(s.items, key)
			reclaimed++
		}
	}
	remaining := len(s.items)
	s.mu.Unlock()

	metrics.UpdateCacheKeys(remaining)
	if reclaimed > 0 {
		metrics.RecordCacheEvictions(reclaimed)
		s.log.Info(context.Background(), "cache sweep",
			logger.Int("reclaimed", reclaimed),
			logger.Int("remaining", remaining),
		)
	}
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

// Namespaced key helpers shared by callers.

func LeadKey(leadID string) string         { return "lead:" + leadID }
func TenantKey(tenantID string) string     { return "tenant:" + tenantID }
func DashboardKey(tenantID string) string  { return "dash:" + tenantID }
func PredictionKey(kind, id string) string { return "predict:" + kind + ":" + id }
func RateLimitKey(identifier string) string {
	return "ratelimit:" + identifier
}
