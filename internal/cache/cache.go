// Package cache holds coupon cache invalidation, the checkout idempotency
// store and the shared rate limiter, backed by Redis or process memory.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

var (
	_ checkout.CacheInvalidator = (*RedisInvalidator)(nil)
	_ Idempotency               = (*RedisIdempotency)(nil)
	_ Idempotency               = (*MemoryIdempotency)(nil)
	_ httpmiddleware.Limiter    = (*RedisLimiter)(nil)
)

// Key templates.
const (
	KeyCoupon          = "coupon:%s"
	KeyCouponAutoApply = "coupon:auto-apply"
	KeyCheckout        = "idem:checkout:%s"
	KeyRateLimit       = "ratelimit:%s:%d"
)

// DefaultTTL is how long a checkout idempotency key is remembered.
const DefaultTTL = 24 * time.Hour

// Config configures the Redis connection.
type Config struct {
	URL string        `yaml:"url" env:"URL"`
	TTL time.Duration `yaml:"ttl" default:"24h" env:"TTL"`
}

// NewClient parses a redis:// URL and returns a client.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}

// CouponKey returns the cache key of a coupon code.
func CouponKey(code string) string {
	return fmt.Sprintf(KeyCoupon, strings.ToUpper(code))
}

// RedisInvalidator deletes cached coupon entries.
type RedisInvalidator struct {
	client redis.UniversalClient
}

// NewRedisInvalidator returns a RedisInvalidator.
func NewRedisInvalidator(client redis.UniversalClient) *RedisInvalidator {
	return &RedisInvalidator{client: client}
}

// InvalidateCoupon drops the coupon entry and the auto-apply list.
func (r *RedisInvalidator) InvalidateCoupon(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, CouponKey(code), KeyCouponAutoApply).Err(); err != nil {
		return errors.Wrap(err, "del coupon keys")
	}
	return nil
}

// Idempotency remembers the order created for a checkout idempotency key.
type Idempotency interface {
	// Lookup returns the order number stored for key.
	Lookup(ctx context.Context, key string) (number string, ok bool, err error)
	// Remember stores number for key unless a number is already stored.
	// It returns the stored number, which differs from number when another
	// request won.
	Remember(ctx context.Context, key, number string) (string, error)
}

// RedisIdempotency stores keys with SETNX and a TTL.
type RedisIdempotency struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisIdempotency returns a RedisIdempotency. A zero ttl selects
// DefaultTTL.
func NewRedisIdempotency(client redis.UniversalClient, ttl time.Duration) *RedisIdempotency {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisIdempotency{client: client, ttl: ttl}
}

func (r *RedisIdempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, fmt.Sprintf(KeyCheckout, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get idempotency key")
	}
	return v, true, nil
}

func (r *RedisIdempotency) Remember(ctx context.Context, key, number string) (string, error) {
	k := fmt.Sprintf(KeyCheckout, key)
	ok, err := r.client.SetNX(ctx, k, number, r.ttl).Result()
	if err != nil {
		return "", errors.Wrap(err, "set idempotency key")
	}
	if ok {
		return number, nil
	}
	existing, err := r.client.Get(ctx, k).Result()
	if err != nil {
		return "", errors.Wrap(err, "get idempotency key")
	}
	return existing, nil
}

type memoryEntry struct {
	number  string
	expires time.Time
}

// MemoryIdempotency is a process-local Idempotency.
type MemoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryIdempotency returns a MemoryIdempotency. A zero ttl selects
// DefaultTTL.
func NewMemoryIdempotency(ttl time.Duration, now func() time.Time) *MemoryIdempotency {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryIdempotency{entries: map[string]memoryEntry{}, ttl: ttl, now: now}
}

func (m *MemoryIdempotency) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.number, true, nil
}

func (m *MemoryIdempotency) Remember(_ context.Context, key, number string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return e.number, nil
	}
	m.entries[key] = memoryEntry{number: number, expires: now.Add(m.ttl)}
	return number, nil
}

// NopInvalidator ignores invalidations. It is used when Redis is not
// configured.
type NopInvalidator struct{}

func (NopInvalidator) InvalidateCoupon(context.Context, string) error { return nil }

// RedisLimiter is a fixed window limiter shared by every API replica. Each
// window is one counter key that expires with the window.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter returns a RedisLimiter allowing limit requests per window.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: max(limit, 1), window: window, now: time.Now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (httpmiddleware.Decision, error) {
	now := r.now()
	start := now.Truncate(r.window)
	k := fmt.Sprintf(KeyRateLimit, key, start.Unix())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return httpmiddleware.Decision{}, errors.Wrap(err, "incr rate limit counter")
	}

	n := int(incr.Val())
	d := httpmiddleware.Decision{
		Allowed:   n <= r.limit,
		Limit:     r.limit,
		Remaining: max(r.limit-n, 0),
		ResetAt:   start.Add(r.window),
	}
	if !d.Allowed {
		d.RetryAfter = d.ResetAt.Sub(now)
	}
	return d, nil
}
