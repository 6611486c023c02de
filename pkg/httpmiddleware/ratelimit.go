package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Decision is the outcome of one Limiter.Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the client is back to its full allowance.
	ResetAt time.Time
	// RetryAfter is set on rejections.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimitOption configures RateLimit.
type RateLimitOption func(*rateLimit)

// WithKeyFunc overrides the client key. Defaults to ClientIP.
func WithKeyFunc(fn func(*http.Request) string) RateLimitOption {
	return func(r *rateLimit) { r.key = fn }
}

// WithScope prefixes keys so several limiters can share one backend.
func WithScope(scope string) RateLimitOption {
	return func(r *rateLimit) { r.scope = scope }
}

// WithMatch limits only requests for which match returns true. Others pass
// through without touching the limiter or the headers.
func WithMatch(match func(*http.Request) bool) RateLimitOption {
	return func(r *rateLimit) { r.match = match }
}

type rateLimit struct {
	limiter Limiter
	key     func(*http.Request) string
	scope   string
	match   func(*http.Request) bool
}

// RateLimit rejects requests over the limiter's allowance with 429 and a
// RATE_LIMITED envelope, and sets the X-RateLimit-* headers on every limited
// request. Limiter errors are logged and the request is let through.
func RateLimit(l Limiter, opts ...RateLimitOption) Middleware {
	rl := &rateLimit{limiter: l, key: ClientIP}
	for _, opt := range opts {
		opt(rl)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.match != nil && !rl.match(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := rl.key(r)
			if rl.scope != "" {
				key = rl.scope + ":" + key
			}
			d, err := rl.limiter.Allow(r.Context(), key)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(d.RetryAfter.Seconds())))))
			zctx.From(r.Context()).Debug("Rate limited", zap.String("key", key))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, try again later.")
		})
	}
}

// MethodPath matches requests with the given method whose path is one of
// paths.
func MethodPath(method string, paths ...string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if r.Method != method {
			return false
		}
		for _, p := range paths {
			if r.URL.Path == p {
				return true
			}
		}
		return false
	}
}

type bucket struct {
	tokens  float64
	updated time.Time
}

// MemoryLimiter is a process-local token bucket limiter. Each key holds up
// to limit tokens and regains them evenly over window.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemoryLimiter returns a MemoryLimiter. limit is raised to at least one.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	limit = max(limit, 1)
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// interval is the time it takes to regain one token.
func (l *MemoryLimiter) interval() time.Duration {
	return l.window / time.Duration(l.limit)
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	capacity := float64(l.limit)
	every := l.interval()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, updated: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.updated); elapsed > 0 {
		b.tokens = math.Min(capacity, b.tokens+float64(elapsed)/float64(every))
		b.updated = now
	}

	d := Decision{Limit: l.limit}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	} else {
		d.RetryAfter = scale(every, 1-b.tokens)
	}
	d.Remaining = int(b.tokens)
	d.ResetAt = now.Add(scale(every, capacity-b.tokens))
	return d, nil
}

// Sweep drops buckets that have refilled completely.
func (l *MemoryLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.updated) >= l.window {
			delete(l.buckets, key)
		}
	}
}

// Run sweeps every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}

// ClientIP returns the client address: the first X-Forwarded-For hop, then
// X-Real-IP, then the host of RemoteAddr. It is the default rate limit key.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
