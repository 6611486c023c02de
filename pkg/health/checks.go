package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is a backing service that can report connectivity, such as the
// PostgreSQL store or a Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck returns a readiness check that pings p.
func PingCheck(name string, p Pinger) Check {
	return Check{
		Name: name,
		Kind: Readiness,
		Fn: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return errors.Wrapf(err, "ping %s", name)
			}
			return nil
		},
	}
}

// GoroutineCheck returns a liveness check that fails once the process runs
// more than limit goroutines. Notification dispatch spawns one goroutine per
// order event, so a stuck broker shows up here first.
func GoroutineCheck(limit int) Check {
	return Check{
		Name: "goroutines",
		Kind: Liveness,
		Fn: func(context.Context) error {
			if n := runtime.NumGoroutine(); n > limit {
				return errors.Errorf("%d goroutines running, limit %d", n, limit)
			}
			return nil
		},
	}
}
