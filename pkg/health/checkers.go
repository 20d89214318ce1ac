package health

import (
	"context"
	"io"
	"net/http"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is anything with a Ping, such as *pgxpool.Pool or a Redis store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks a connection pool or client.
func Ping(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// Upstream checks that GET url answers 2xx. Use it on a dependency's
// readiness endpoint.
func Upstream(client *http.Client, url string) CheckFunc {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, "build request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return errors.Wrap(err, "request")
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return errors.Errorf("upstream answered %d", resp.StatusCode)
		}
		return nil
	}
}

// Goroutines fails when the goroutine count exceeds max, which usually
// means a leak.
func Goroutines(max int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return errors.Errorf("goroutine count %d exceeds %d", n, max)
		}
		return nil
	}
}
