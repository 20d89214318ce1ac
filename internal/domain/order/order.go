package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPending waits for the hosted checkout to report an outcome.
	StatusPending Status = "pending"
	// StatusPaid is terminal: the gateway confirmed payment.
	StatusPaid Status = "paid"
	// StatusFailed is terminal: the gateway declined or the session could not be created.
	StatusFailed Status = "failed"
	// StatusCashPending is a confirmed cash-on-delivery order.
	StatusCashPending Status = "cash-pending"
)

// CanTransitionTo reports whether an order in status s may move to next.
// Only pending orders change state.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusPaid || next == StatusFailed)
}

// Item is a priced line of an order. Prices always come from the catalog.
type Item struct {
	ProductID   string          `json:"id"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"image,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Shipping is the delivery address captured at checkout.
type Shipping struct {
	FullName   string `json:"fullName"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// Missing returns the JSON names of required fields that are blank.
func (s Shipping) Missing() []string {
	var out []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"fullName", s.FullName},
		{"address", s.Address},
		{"city", s.City},
		{"postalCode", s.PostalCode},
		{"phone", s.Phone},
		{"email", s.Email},
	} {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// Order is a placed order with pricing, discount and payment state.
type Order struct {
	ID               string
	Status           Status
	PaymentMethod    payment.Key
	Items            []Item
	Shipping         Shipping
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	CouponCode       string
	RedirectURL      string
	PaymentSessionID string
	IdempotencyKey   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Repository defines persistence operations for orders. Implementations
// record an order event in the same transaction as every write.
type Repository interface {
	// Create inserts a new order and records one use of o.CouponCode in the
	// same transaction. Returns ErrDuplicateIdempotencyKey when another order
	// already holds o.IdempotencyKey and promotion.ErrUsageLimitReached when
	// the coupon has no uses left; neither writes anything.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Order, error)
	AttachPaymentSession(ctx context.Context, id, sessionID, redirectURL string) error
	// UpdateStatus moves the order from one status to another. Moving to
	// StatusFailed releases the order's coupon use. Returns ErrStatusConflict
	// when the stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}

// SessionRequest describes the hosted checkout session to create for an order.
type SessionRequest struct {
	OrderID    string
	Method     payment.Key
	Amount     decimal.Decimal
	Currency   string
	Email      string
	SuccessURL string
	CancelURL  string
}

// Session is a hosted checkout session created by the gateway.
type Session struct {
	ID  string
	URL string
}

// Gateway creates hosted checkout sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}
