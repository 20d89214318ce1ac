package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/payment"
)

const listPaymentMethodsSQL = `SELECT key, type, icon, position, enabled
	FROM payment_methods WHERE enabled = TRUE ORDER BY position, key`

var _ payment.Repository = (*PaymentMethodRepository)(nil)

// PaymentMethodRepository serves payment method display metadata.
type PaymentMethodRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentMethodRepository returns a PaymentMethodRepository that uses the given pool.
func NewPaymentMethodRepository(pool *pgxpool.Pool) *PaymentMethodRepository {
	return &PaymentMethodRepository{pool: pool}
}

// ListMethods returns the enabled methods in display order.
func (r *PaymentMethodRepository) ListMethods(ctx context.Context) ([]payment.Listing, error) {
	rows, err := r.pool.Query(ctx, listPaymentMethodsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing payment methods: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payment.Listing, error) {
		var (
			l        payment.Listing
			key      string
			position int32
		)
		err := row.Scan(&key, &l.Type, &l.Icon, &position, &l.Enabled)
		l.Key = payment.Key(key)
		l.Position = int(position)
		return l, err
	})
}
