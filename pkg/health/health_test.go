package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type probeBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Checks map[string]struct {
		State     string `json:"state"`
		Error     string `json:"error"`
		CheckedAt string `json:"checked_at"`
	} `json:"checks"`
}

func probe(t *testing.T, h http.Handler) (int, probeBody) {
	t.Helper()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body probeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

// switchable fails while err is set.
type switchable struct {
	err   atomic.Pointer[error]
	calls atomic.Int32
}

func (s *switchable) fail(err error) { s.err.Store(&err) }
func (s *switchable) recover()       { s.err.Store(nil) }

func (s *switchable) Ping(context.Context) error {
	s.calls.Add(1)
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

func newService(t *testing.T, checks ...Check) *Service {
	t.Helper()
	s := New(WithClock(func() time.Time { return fixedNow }))
	for _, c := range checks {
		s.Register(c)
	}
	t.Cleanup(s.Stop)
	return s
}

// runAll drives every check once without the background poller.
func runAll(s *Service) {
	for _, c := range s.checks {
		c.run(context.Background(), s.now())
	}
}

func TestReadyHandler(t *testing.T) {
	db := &switchable{}
	s := newService(t, PingCheck("postgres", db))

	t.Run("NotReady", func(t *testing.T) {
		code, body := probe(t, s.ReadyHandler())
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "not accepting traffic", body.Reason)
		assert.Equal(t, "pending", body.Checks["postgres"].State)
	})

	s.SetReady(true)

	t.Run("Passing", func(t *testing.T) {
		runAll(s)
		code, body := probe(t, s.ReadyHandler())
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ok", body.Checks["postgres"].State)
		assert.Equal(t, "2025-06-15T12:00:00Z", body.Checks["postgres"].CheckedAt)
		assert.True(t, s.Ready())
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		db.fail(errors.New("connection refused"))
		runAll(s)
		runAll(s)

		code, body := probe(t, s.ReadyHandler())
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "degraded", body.Checks["postgres"].State)
		assert.Contains(t, body.Checks["postgres"].Error, "connection refused")
	})

	t.Run("Failing", func(t *testing.T) {
		runAll(s)

		code, body := probe(t, s.ReadyHandler())
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "failing", body.Checks["postgres"].State)
		assert.Equal(t, "ping postgres: connection refused", body.Checks["postgres"].Error)
		assert.False(t, s.Ready())
	})

	t.Run("Recovered", func(t *testing.T) {
		db.recover()
		runAll(s)

		code, body := probe(t, s.ReadyHandler())
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Checks["postgres"].State)
		assert.Empty(t, body.Checks["postgres"].Error)
	})

	t.Run("Draining", func(t *testing.T) {
		s.SetReady(false)
		code, _ := probe(t, s.ReadyHandler())
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}

func TestLiveHandler_IgnoresReadinessChecks(t *testing.T) {
	redis := &switchable{}
	redis.fail(errors.New("i/o timeout"))
	redisCheck := PingCheck("redis", redis)
	redisCheck.FailureThreshold = 1

	s := newService(t, redisCheck, GoroutineCheck(1_000_000))
	runAll(s)

	code, body := probe(t, s.LiveHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Contains(t, body.Checks, "goroutines")
	assert.NotContains(t, body.Checks, "redis")

	s.SetReady(true)
	code, body = probe(t, s.ReadyHandler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "failing", body.Checks["redis"].State)
}

func TestLiveHandler_NoChecks(t *testing.T) {
	code, body := probe(t, newService(t).LiveHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestStart(t *testing.T) {
	db := &switchable{}
	s := newService(t, PingCheck("postgres", db))

	s.Start(context.Background(), time.Hour)
	assert.EqualValues(t, 1, db.calls.Load(), "first run happens before Start returns")

	s.SetReady(true)
	assert.True(t, s.Ready())

	s.Stop()
	s.Stop()
}

func TestStart_Polls(t *testing.T) {
	db := &switchable{}
	s := newService(t, PingCheck("postgres", db))

	s.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return db.calls.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestRegister_Defaults(t *testing.T) {
	s := newService(t, Check{Name: "noop", Fn: func(context.Context) error { return nil }})
	c := s.checks[0]
	assert.Equal(t, time.Second, c.Timeout)
	assert.Equal(t, 3, c.FailureThreshold)
	assert.Equal(t, Liveness, c.Kind)
}

func TestGoroutineCheck(t *testing.T) {
	assert.NoError(t, GoroutineCheck(1_000_000).Fn(context.Background()))
	assert.Error(t, GoroutineCheck(0).Fn(context.Background()))
}

func TestCheckTimeout(t *testing.T) {
	slow := Check{
		Name:             "slow",
		Kind:             Readiness,
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s := newService(t, slow)
	s.SetReady(true)
	runAll(s)

	_, body := probe(t, s.ReadyHandler())
	assert.Equal(t, "failing", body.Checks["slow"].State)
	assert.Equal(t, context.DeadlineExceeded.Error(), body.Checks["slow"].Error)
}
