// Package health serves liveness and readiness probes.
//
// Every registered check is polled in the background and its last result is
// cached, so probe requests never touch the database or Redis directly. A
// check flips to failing only after FailureThreshold consecutive errors and
// recovers on the first success.
package health

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// CheckFunc reports nil when the dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes one dependency check.
type Check struct {
	Name string
	Kind Kind
	Fn   CheckFunc
	// Timeout bounds one run. Defaults to one second.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive errors before the check
	// reports failing. Defaults to 3.
	FailureThreshold int
}

// result is the cached outcome of a check. It is replaced atomically.
type result struct {
	failing   bool
	err       string
	checkedAt time.Time
}

type check struct {
	Check
	last  atomic.Pointer[result]
	fails int // owned by the polling goroutine
}

func (c *check) run(ctx context.Context, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	next := &result{checkedAt: now}
	if err := c.Fn(ctx); err != nil {
		c.fails++
		next.err = err.Error()
		next.failing = c.fails >= c.FailureThreshold
	} else {
		c.fails = 0
	}
	c.last.Store(next)
}

// Service tracks registered checks and the manual readiness switch.
type Service struct {
	now   func() time.Time
	ready atomic.Bool

	mu     sync.Mutex
	checks []*check
	cancel context.CancelFunc
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for checked_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service that reports not ready until SetReady(true).
func New(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a check. Checks registered after Start are not polled.
func (s *Service) Register(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, &check{Check: c})
}

// Start runs every check once synchronously, then polls each one at interval
// until Stop or ctx is done.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	checks := slices.Clone(s.checks)
	s.mu.Unlock()

	for _, c := range checks {
		c.run(ctx, s.now())
		go s.poll(ctx, c, interval)
	}
}

func (s *Service) poll(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx, s.now())
		}
	}
}

// Stop cancels polling. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the manual readiness switch. It is turned off first during
// graceful shutdown so load balancers drain the instance.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Ready reports whether the switch is on and no readiness check is failing.
func (s *Service) Ready() bool {
	ok, _ := s.report(Readiness)
	return ok && s.ready.Load()
}

func (s *Service) report(kind Kind) (bool, []namedResult) {
	s.mu.Lock()
	checks := slices.Clone(s.checks)
	s.mu.Unlock()

	ok := true
	var out []namedResult
	for _, c := range checks {
		if c.Kind != kind {
			continue
		}
		r := c.last.Load()
		if r == nil {
			r = &result{}
		}
		if r.failing {
			ok = false
		}
		out = append(out, namedResult{name: c.Name, result: *r})
	}
	slices.SortFunc(out, func(a, b namedResult) int { return cmp.Compare(a.name, b.name) })
	return ok, out
}

type namedResult struct {
	name string
	result
}

// LiveHandler serves /livez.
func (s *Service) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ok, results := s.report(Liveness)
		write(w, ok, "", results)
	})
}

// ReadyHandler serves /readyz.
func (s *Service) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ok, results := s.report(Readiness)
		reason := ""
		if !s.ready.Load() {
			ok = false
			reason = "not accepting traffic"
		}
		write(w, ok, reason, results)
	})
}

// write encodes {"status":"ok"|"unhealthy","reason"?,"checks"?:{name:{...}}}.
func write(w http.ResponseWriter, ok bool, reason string, results []namedResult) {
	status, code := "ok", http.StatusOK
	if !ok {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if reason != "" {
			e.Field("reason", func(e *jx.Encoder) { e.Str(reason) })
		}
		if len(results) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, r := range results {
					e.Field(r.name, func(e *jx.Encoder) { encodeResult(e, r.result) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func encodeResult(e *jx.Encoder, r result) {
	e.Obj(func(e *jx.Encoder) {
		state := "ok"
		switch {
		case r.checkedAt.IsZero():
			state = "pending"
		case r.failing:
			state = "failing"
		case r.err != "":
			state = "degraded"
		}
		e.Field("state", func(e *jx.Encoder) { e.Str(state) })
		if r.err != "" {
			e.Field("error", func(e *jx.Encoder) { e.Str(r.err) })
		}
		if !r.checkedAt.IsZero() {
			e.Field("checked_at", func(e *jx.Encoder) { e.Str(r.checkedAt.UTC().Format(time.RFC3339)) })
		}
	})
}
