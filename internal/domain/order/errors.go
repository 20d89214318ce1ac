package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems              = errors.New("items required")
	ErrNotFound                = errors.New("order not found")
	ErrStatusConflict          = errors.New("order status conflict")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ValidationError lists request fields that are missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

// GatewayError reports that the hosted checkout session could not be created.
// The order has been marked failed.
type GatewayError struct {
	OrderID string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway for order %s: %v", e.OrderID, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
