package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

const (
	upsertProductSQL = `INSERT INTO products (id, sku, name, description, price, category, image_url, stock, min_stock_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku, name = EXCLUDED.name, description = EXCLUDED.description,
			price = EXCLUDED.price, category = EXCLUDED.category, image_url = EXCLUDED.image_url,
			min_stock_threshold = EXCLUDED.min_stock_threshold, updated_at = now()`

	upsertPaymentMethodSQL = `INSERT INTO payment_methods (key, type, icon, position, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			type = EXCLUDED.type, icon = EXCLUDED.icon, position = EXCLUDED.position, enabled = EXCLUDED.enabled`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_items, description,
			valid_from, valid_until, max_uses, max_discount, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value, min_items = EXCLUDED.min_items,
			description = EXCLUDED.description, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, max_uses = EXCLUDED.max_uses,
			max_discount = EXCLUDED.max_discount, active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash, name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE`
)

// SeedRepository writes reference data. Existing stock levels are never
// overwritten by a product upsert; stock changes go through the inventory
// ledger.
type SeedRepository struct {
	pool *pgxpool.Pool
}

// NewSeedRepository returns a SeedRepository that uses the given pool.
func NewSeedRepository(pool *pgxpool.Pool) *SeedRepository {
	return &SeedRepository{pool: pool}
}

// UpsertProduct inserts or updates a catalog product.
func (r *SeedRepository) UpsertProduct(ctx context.Context, p product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.SKU, p.Name, p.Description, p.Price, p.Category, p.ImageURL, p.Stock, p.MinStockThreshold,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertPaymentMethod inserts or updates payment method display metadata.
func (r *SeedRepository) UpsertPaymentMethod(ctx context.Context, l payment.Listing) error {
	_, err := r.pool.Exec(ctx, upsertPaymentMethodSQL, string(l.Key), l.Type, l.Icon, l.Position, l.Enabled)
	if err != nil {
		return fmt.Errorf("upserting payment method %q: %w", l.Key, err)
	}
	return nil
}

// UpsertPromotion inserts or updates an active promotion.
func (r *SeedRepository) UpsertPromotion(ctx context.Context, p promotion.Promotion) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		p.Code, string(p.Kind), p.Value, p.MinItems, p.Description,
		p.ValidFrom, p.ValidUntil, p.MaxUses, p.MaxDiscount,
	)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", p.Code, err)
	}
	return nil
}

// UpsertAPIKey inserts or updates an admin API key by id.
func (r *SeedRepository) UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error {
	_, err := r.pool.Exec(ctx, upsertAPIKeySQL, k.ID, k.KeyHash, k.Name, k.Scopes)
	if err != nil {
		return fmt.Errorf("upserting api key %q: %w", k.ID, err)
	}
	return nil
}
