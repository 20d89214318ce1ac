package outbox

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// RelayConfig controls the polling loop.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
	// MaxBackoff caps the delay between polls after consecutive failures.
	MaxBackoff time.Duration
}

// Relay polls the store and publishes pending records.
type Relay struct {
	store      Store
	publisher  Publisher
	cfg        RelayConfig
	published  metric.Int64Counter
	newBackOff func() backoff.BackOff
}

// NewRelay creates a Relay. meter may be nil.
func NewRelay(store Store, publisher Publisher, cfg RelayConfig, meter metric.Meter) (*Relay, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	r := &Relay{store: store, publisher: publisher, cfg: cfg}
	r.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.cfg.Interval
		b.MaxInterval = r.cfg.MaxBackoff
		b.MaxElapsedTime = 0
		return b
	}
	if meter != nil {
		c, err := meter.Int64Counter("outbox.published",
			metric.WithDescription("Order events published to the broker"))
		if err != nil {
			return nil, errors.Wrap(err, "create counter")
		}
		r.published = c
	}
	return r, nil
}

// Run drains the outbox until ctx is cancelled. Full batches are followed
// immediately by another drain; failures back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("outbox")
	bo := r.newBackOff()
	delay := r.cfg.Interval

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		n, err := r.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			delay = bo.NextBackOff()
			lg.Warn("Relay failed", zap.Error(err), zap.Duration("retry_in", delay))
		case n == r.cfg.BatchSize:
			bo.Reset()
			delay = 0
		default:
			bo.Reset()
			delay = r.cfg.Interval
		}
	}
}

// RunOnce drains one batch and returns the number of records published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	n, err := r.store.Drain(ctx, r.cfg.BatchSize, r.publisher.Publish)
	if err != nil {
		return 0, errors.Wrap(err, "drain")
	}
	if n > 0 && r.published != nil {
		r.published.Add(ctx, int64(n))
	}
	return n, nil
}
