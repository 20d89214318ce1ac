package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/outbox"
)

const (
	enqueueOutboxSQL = `INSERT INTO outbox (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`

	claimOutboxSQL = `SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	markOutboxSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`
)

var _ outbox.Store = (*OutboxStore)(nil)

// OutboxStore implements outbox.Store backed by PostgreSQL.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore returns an OutboxStore that uses the given pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// Drain locks up to limit pending records, passes them to publish and marks
// them sent in the same transaction. Concurrent relays skip locked rows.
func (s *OutboxStore) Drain(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	var n int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, claimOutboxSQL, limit)
		if err != nil {
			return fmt.Errorf("claiming outbox records: %w", err)
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Record, error) {
			var r outbox.Record
			err := row.Scan(&r.ID, &r.AggregateID, &r.EventType, &r.Payload, &r.CreatedAt)
			return r, err
		})
		if err != nil {
			return fmt.Errorf("scanning outbox records: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		if err := publish(ctx, batch); err != nil {
			return err
		}

		ids := make([]int64, len(batch))
		for i, r := range batch {
			ids[i] = r.ID
		}
		if _, err := tx.Exec(ctx, markOutboxSentSQL, ids); err != nil {
			return fmt.Errorf("marking outbox records sent: %w", err)
		}
		n = len(batch)
		return nil
	})
	return n, err
}

func enqueue(ctx context.Context, q querier, aggregateID, eventType string, payload []byte) error {
	if _, err := q.Exec(ctx, enqueueOutboxSQL, aggregateID, eventType, payload); err != nil {
		return fmt.Errorf("enqueueing %s event: %w", eventType, err)
	}
	return nil
}
