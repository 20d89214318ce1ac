package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/inventory"
)

const (
	stockColumns = `id, sku, name, category, stock, min_stock_threshold, updated_at`

	stockStatusExpr = `CASE
		WHEN stock <= 0 THEN 'out_of_stock'
		WHEN min_stock_threshold IS NOT NULL AND stock <= min_stock_threshold THEN 'low_stock'
		ELSE 'in_stock' END`

	listStockSQL = `SELECT ` + stockColumns + ` FROM products
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR sku ILIKE '%' || $2 || '%')
		  AND ($3 = '' OR ` + stockStatusExpr + ` = $3)
		ORDER BY name, id
		LIMIT $4 OFFSET $5`

	getStockSQL = `SELECT ` + stockColumns + ` FROM products WHERE id = $1`

	lockStockSQL = `SELECT ` + stockColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	setStockSQL = `UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1`

	movementColumns = `id, product_id, quantity_change, stock_after, reason, actor,
		COALESCE(request_id, ''), created_at`

	insertMovementSQL = `INSERT INTO stock_movements
		(product_id, quantity_change, stock_after, reason, actor, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	movementByRequestIDSQL = `SELECT ` + movementColumns + ` FROM stock_movements WHERE request_id = $1`

	listMovementsSQL = `SELECT ` + movementColumns + ` FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
)

var (
	_ inventory.Repository = (*InventoryRepository)(nil)
	_ inventory.Tx         = (*inventoryTx)(nil)
)

// InventoryRepository implements inventory.Repository backed by PostgreSQL.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// InTx runs fn inside a transaction that commits only when fn returns nil.
func (r *InventoryRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &inventoryTx{q: tx})
	})
}

// List returns stock records matching f ordered by name.
func (r *InventoryRepository) List(ctx context.Context, f inventory.Filter) ([]inventory.Record, error) {
	rows, err := r.pool.Query(ctx, listStockSQL, f.Category, f.Search, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	return pgx.CollectRows(rows, scanRecord)
}

// Get returns the stock record of a product.
func (r *InventoryRepository) Get(ctx context.Context, productID string) (*inventory.Record, error) {
	return getRecord(ctx, r.pool, getStockSQL, productID)
}

// Movements returns the newest movements of a product.
func (r *InventoryRepository) Movements(ctx context.Context, productID string, limit int) ([]inventory.Movement, error) {
	rows, err := r.pool.Query(ctx, listMovementsSQL, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing movements of %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanMovement)
}

type inventoryTx struct {
	q querier
}

func (t *inventoryTx) LockRecord(ctx context.Context, productID string) (*inventory.Record, error) {
	return getRecord(ctx, t.q, lockStockSQL, productID)
}

func (t *inventoryTx) MovementByRequestID(ctx context.Context, requestID string) (*inventory.Movement, error) {
	rows, err := t.q.Query(ctx, movementByRequestIDSQL, requestID)
	if err != nil {
		return nil, fmt.Errorf("getting movement %q: %w", requestID, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMovement)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting movement %q: %w", requestID, err)
	}
	return &m, nil
}

func (t *inventoryTx) SetStock(ctx context.Context, productID string, stock int, at time.Time) error {
	if _, err := t.q.Exec(ctx, setStockSQL, productID, stock, at); err != nil {
		return fmt.Errorf("setting stock of %q: %w", productID, err)
	}
	return nil
}

func (t *inventoryTx) InsertMovement(ctx context.Context, m *inventory.Movement) error {
	err := t.q.QueryRow(ctx, insertMovementSQL,
		m.ProductID, m.QuantityChange, m.StockAfter, m.Reason, m.Actor,
		nullIfEmpty(m.RequestID), m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("inserting movement for %q: %w", m.ProductID, err)
	}
	return nil
}

func getRecord(ctx context.Context, q querier, sql, productID string) (*inventory.Record, error) {
	rows, err := q.Query(ctx, sql, productID)
	if err != nil {
		return nil, fmt.Errorf("getting stock of %q: %w", productID, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting stock of %q: %w", productID, err)
	}
	return &rec, nil
}

func scanRecord(row pgx.CollectableRow) (inventory.Record, error) {
	var (
		r         inventory.Record
		stock     int32
		threshold *int32
	)
	err := row.Scan(&r.ProductID, &r.SKU, &r.Name, &r.Category, &stock, &threshold, &r.UpdatedAt)
	r.Stock = int(stock)
	if threshold != nil {
		v := int(*threshold)
		r.MinStockThreshold = &v
	}
	return r, err
}

func scanMovement(row pgx.CollectableRow) (inventory.Movement, error) {
	var (
		m          inventory.Movement
		change     int32
		stockAfter int32
	)
	err := row.Scan(&m.ID, &m.ProductID, &change, &stockAfter, &m.Reason, &m.Actor, &m.RequestID, &m.CreatedAt)
	m.QuantityChange = int(change)
	m.StockAfter = int(stockAfter)
	return m, err
}
