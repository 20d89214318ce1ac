package inventory

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-faster/errors"
)

// Mode selects how an adjustment quantity is applied.
type Mode string

const (
	ModeAdd      Mode = "add"
	ModeSubtract Mode = "subtract"
	ModeSet      Mode = "set"
)

// MaxStock is the largest stock level or adjustment quantity; stock columns
// are 32-bit integers.
const MaxStock = math.MaxInt32

// Errors returned by the inventory service.
var (
	ErrNotFound = errors.New("product not found")
)

// ValidationError lists rejected adjustment fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid adjustment: " + strings.Join(e.Fields, ", ")
}

// Compute returns the new stock level and the signed change for applying
// quantity in the given mode to current. Subtraction floors at zero; an
// addition past MaxStock is a *ValidationError.
func Compute(current int, mode Mode, quantity int) (next, change int, err error) {
	switch mode {
	case ModeAdd:
		if quantity > MaxStock-current {
			return 0, 0, &ValidationError{Fields: []string{"quantity"}}
		}
		next = current + quantity
	case ModeSubtract:
		next = max(current-quantity, 0)
	case ModeSet:
		next = quantity
	default:
		return 0, 0, fmt.Errorf("unknown mode %q", mode)
	}
	return next, next - current, nil
}

// AdjustRequest is an admin stock adjustment.
type AdjustRequest struct {
	ProductID string
	Mode      Mode
	Quantity  int
	Reason    string
	Actor     string
	// RequestID makes retries idempotent when set.
	RequestID string
}

func (r AdjustRequest) validate() error {
	var fields []string
	if strings.TrimSpace(r.ProductID) == "" {
		fields = append(fields, "productId")
	}
	switch r.Mode {
	case ModeAdd, ModeSubtract, ModeSet:
	default:
		fields = append(fields, "mode")
	}
	if r.Quantity < 0 || r.Quantity > MaxStock {
		fields = append(fields, "quantity")
	}
	if strings.TrimSpace(r.Reason) == "" {
		fields = append(fields, "reason")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Adjustment is the outcome of AdjustStock.
type Adjustment struct {
	Record   Record
	Movement Movement
	// Replayed is true when the request id had already been applied.
	Replayed bool
}
