// Package inventory implements admin stock adjustment with an immutable
// movement ledger.
package inventory

import (
	"context"
	"time"
)

// Status is the derived availability of a product.
type Status string

const (
	StatusInStock    Status = "in_stock"
	StatusLowStock   Status = "low_stock"
	StatusOutOfStock Status = "out_of_stock"
)

// ParseStatus reports whether s names a known status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusInStock, StatusLowStock, StatusOutOfStock:
		return st, true
	}
	return "", false
}

// StatusOf derives the availability for a stock level and optional threshold.
func StatusOf(stock int, threshold *int) Status {
	switch {
	case stock <= 0:
		return StatusOutOfStock
	case threshold != nil && stock <= *threshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Record is the stock view of a product.
type Record struct {
	ProductID         string
	SKU               string
	Name              string
	Category          string
	Stock             int
	MinStockThreshold *int
	UpdatedAt         time.Time
}

// Status derives the record's availability.
func (r Record) Status() Status {
	return StatusOf(r.Stock, r.MinStockThreshold)
}

// Movement is an immutable ledger entry. QuantityChange always equals the
// difference between stock after and before the adjustment.
type Movement struct {
	ID             int64
	ProductID      string
	QuantityChange int
	StockAfter     int
	Reason         string
	Actor          string
	RequestID      string
	CreatedAt      time.Time
}

// Filter narrows a stock listing. Zero values mean no constraint.
type Filter struct {
	Category string
	Status   Status
	Search   string
	Limit    int
	Offset   int
}

// Tx is the set of writes performed atomically by an adjustment.
type Tx interface {
	// LockRecord loads the record and holds a row lock until the transaction ends.
	LockRecord(ctx context.Context, productID string) (*Record, error)
	// MovementByRequestID returns ErrNotFound when no movement carries the id.
	MovementByRequestID(ctx context.Context, requestID string) (*Movement, error)
	SetStock(ctx context.Context, productID string, stock int, at time.Time) error
	InsertMovement(ctx context.Context, m *Movement) error
}

// Repository persists stock records and movements.
type Repository interface {
	// InTx runs fn in one transaction. A returned error rolls back every write.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	List(ctx context.Context, f Filter) ([]Record, error)
	Get(ctx context.Context, productID string) (*Record, error)
	Movements(ctx context.Context, productID string, limit int) ([]Movement, error)
}
