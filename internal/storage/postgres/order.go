package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/promotion"
)

const (
	orderColumns = `id, status, payment_method, items, shipping, subtotal, discount, total,
		coupon_code, redirect_url, COALESCE(payment_session_id, ''), COALESCE(idempotency_key, ''),
		created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, status, payment_method, items, shipping, subtotal,
		discount, total, coupon_code, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByIdempotencyKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	getOrderBySessionIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_session_id = $1`

	attachPaymentSessionSQL = `UPDATE orders SET payment_session_id = $2, redirect_url = $3, updated_at = now()
		WHERE id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	// The usage guard is repeated here so concurrent orders cannot exceed
	// max_uses.
	redeemCouponSQL = `UPDATE coupons SET uses = uses + 1
		WHERE UPPER(code) = UPPER($1) AND (max_uses = 0 OR uses < max_uses)`

	releaseCouponSQL = `UPDATE coupons SET uses = GREATEST(uses - 1, 0)
		WHERE UPPER(code) = UPPER($1)`

	idempotencyKeyConstraint = "orders_idempotency_key_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Every
// write enqueues the matching order event in the outbox table within the
// same transaction.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and records one use of its coupon. Items and
// shipping are serialized to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shippingJSON, err := json.Marshal(o.Shipping)
	if err != nil {
		return fmt.Errorf("marshaling shipping: %w", err)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Status, o.PaymentMethod, itemsJSON, shippingJSON, o.Subtotal,
			o.Discount, o.Total, o.CouponCode, nullIfEmpty(o.IdempotencyKey), o.CreatedAt,
		); err != nil {
			return err
		}
		if o.CouponCode != "" {
			tag, err := tx.Exec(ctx, redeemCouponSQL, o.CouponCode)
			if err != nil {
				return fmt.Errorf("redeeming promotion %q: %w", o.CouponCode, err)
			}
			if tag.RowsAffected() == 0 {
				return promotion.ErrUsageLimitReached
			}
		}
		return enqueue(ctx, tx, o.ID, string(order.EventCreated), order.EncodeEvent(order.EventCreated, o, o.CreatedAt))
	})
	if err != nil {
		if isUniqueViolation(err, idempotencyKeyConstraint) {
			return order.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order with the given id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByIdempotencyKey returns the order created with key.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIdempotencyKeySQL, key)
}

// GetBySessionID returns the order owning the hosted checkout session.
func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderBySessionIDSQL, sessionID)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// AttachPaymentSession stores the hosted checkout session on the order.
func (r *OrderRepository) AttachPaymentSession(ctx context.Context, id, sessionID, redirectURL string) error {
	tag, err := r.pool.Exec(ctx, attachPaymentSessionSQL, id, sessionID, redirectURL)
	if err != nil {
		return fmt.Errorf("attaching session to order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdateStatus performs a compare-and-set on the order status and enqueues
// the status event. A failed order gives its coupon use back.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, updateOrderStatusSQL, id, from, to)
		if err != nil {
			return fmt.Errorf("updating order %q: %w", id, err)
		}
		o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("updating order %q: %w", id, err)
			}
			var exists bool
			if err := tx.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
				return fmt.Errorf("checking order %q: %w", id, err)
			}
			if !exists {
				return order.ErrNotFound
			}
			return order.ErrStatusConflict
		}

		if to == order.StatusFailed && o.CouponCode != "" {
			if _, err := tx.Exec(ctx, releaseCouponSQL, o.CouponCode); err != nil {
				return fmt.Errorf("releasing promotion %q: %w", o.CouponCode, err)
			}
		}

		ev := order.EventForStatus(to)
		return enqueue(ctx, tx, o.ID, string(ev), order.EncodeEvent(ev, &o, o.UpdatedAt))
	})
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o            order.Order
		status       string
		method       string
		itemsJSON    []byte
		shippingJSON []byte
	)
	if err := row.Scan(
		&o.ID, &status, &method, &itemsJSON, &shippingJSON, &o.Subtotal, &o.Discount, &o.Total,
		&o.CouponCode, &o.RedirectURL, &o.PaymentSessionID, &o.IdempotencyKey,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.PaymentMethod = payment.Key(method)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &o.Shipping); err != nil {
		return o, fmt.Errorf("unmarshaling shipping: %w", err)
	}
	return o, nil
}
