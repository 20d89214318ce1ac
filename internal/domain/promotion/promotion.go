// Package promotion evaluates promo codes against an order's line items.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes a percentage off the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed takes a fixed amount off, capped at the subtotal.
	KindFixed Kind = "fixed"
	// KindFreeLowest removes the unit price of the cheapest line.
	KindFreeLowest Kind = "free_lowest"
)

var (
	// ErrInvalidCode is returned when a code is unknown, inactive, or the
	// order does not meet the promotion's minimum item count.
	ErrInvalidCode = errors.New("invalid promo code")
	// ErrExpired is returned outside the promotion's validity window.
	ErrExpired = errors.New("promo code expired")
	// ErrUsageLimitReached is returned once a promotion has used all its redemptions.
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
)

// Promotion is a promo code with its discount behaviour and eligibility
// constraints.
type Promotion struct {
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	MinItems    int
	Description string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	// MaxUses of zero means unlimited.
	MaxUses int
	Uses    int
	// MaxDiscount caps the computed amount when positive.
	MaxDiscount decimal.Decimal
}

// Discount is the computed amount and its human-readable description.
type Discount struct {
	Amount      decimal.Decimal
	Description string
}

// Line is an order line as seen by discount calculation.
type Line struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// Repository looks up promotions. Uses are recorded together with the order
// that consumes them.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Promotion, error)
}
