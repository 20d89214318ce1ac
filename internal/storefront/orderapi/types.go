package orderapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
)

// LineItem is one cart line as order-api accepts it. Name, Price and Image
// are display hints; order-api prices from its catalog.
type LineItem struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Quantity    int
	Image       string
	Description string
}

// ShippingAddress is the delivery contact sent with an order.
type ShippingAddress struct {
	FullName   string
	Address    string
	City       string
	PostalCode string
	Phone      string
	Email      string
}

// PlaceOrderRequest is the body of POST /api/orders.
type PlaceOrderRequest struct {
	CartItems       []LineItem
	ShippingAddress ShippingAddress
	PaymentMethod   payment.Key
	CouponCode      string
	// IdempotencyKey is sent as a header; retries with the same key return
	// the original order.
	IdempotencyKey string
}

// PlaceOrderResponse holds whichever of URL or OrderID order-api returned.
type PlaceOrderResponse struct {
	URL     string
	OrderID string
}

// MethodInfo is the display metadata of a payment method.
type MethodInfo struct {
	Type string `json:"type"`
	Icon string `json:"icon"`
}

// OrderItem is a priced line of a stored order.
type OrderItem struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Quantity    int
	Description string
}

// Order is the storefront view of a stored order.
type Order struct {
	ID            string
	Status        string
	PaymentMethod string
	RedirectURL   string
	Items         []OrderItem
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	CreatedAt     time.Time
}
