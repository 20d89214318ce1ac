package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/promotion"
)

// Uses are recorded by OrderRepository inside the order transaction.
const getCouponByCodeSQL = `SELECT code, discount_type, value, min_items, description,
	valid_from, valid_until, max_uses, uses, max_discount
	FROM coupons WHERE UPPER(code) = UPPER($1) AND active = TRUE`

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode looks up an active promotion by its code (case-insensitive).
// Returns promotion.ErrInvalidCode when no matching active promotion exists.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrInvalidCode
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}
	return &p, nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p          promotion.Promotion
		kind       string
		minItems   int32
		validFrom  *time.Time
		validUntil *time.Time
		maxUses    int32
		uses       int32
	)
	err := row.Scan(
		&p.Code, &kind, &p.Value, &minItems, &p.Description,
		&validFrom, &validUntil, &maxUses, &uses, &p.MaxDiscount,
	)
	p.Kind = promotion.Kind(kind)
	p.MinItems = int(minItems)
	p.ValidFrom = validFrom
	p.ValidUntil = validUntil
	p.MaxUses = int(maxUses)
	p.Uses = int(uses)
	return p, err
}
