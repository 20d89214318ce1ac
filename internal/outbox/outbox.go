// Package outbox relays events recorded in the database to the message broker.
package outbox

import (
	"context"
	"time"
)

// Record is an event waiting to be published.
type Record struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Store hands out pending records. Drain marks the batch sent only when
// publish succeeds; otherwise the batch stays pending.
type Store interface {
	Drain(ctx context.Context, limit int, publish func(ctx context.Context, batch []Record) error) (int, error)
}

// Publisher delivers a batch of records to the broker.
type Publisher interface {
	Publish(ctx context.Context, batch []Record) error
}
