// Package cart holds a shopper's line items.
//
// The cart is a plain value (Cart) with merge rules, and a Store that loads
// and saves it through an injected Persistence adapter keyed by owner.
package cart

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrLineNotFound is returned when a line key does not match any line.
var ErrLineNotFound = errors.New("cart line not found")

// MaxQuantity is the largest quantity a single line may hold.
const MaxQuantity = 9999

// ValidationError lists the fields of a line that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid cart line: " + strings.Join(e.Fields, ", ")
}

// LineKey identifies a line. At most one line exists per key.
type LineKey struct {
	ProductID string `json:"id"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

func (k LineKey) normalize() LineKey {
	return LineKey{
		ProductID: strings.TrimSpace(k.ProductID),
		Color:     strings.TrimSpace(k.Color),
		Size:      strings.TrimSpace(k.Size),
	}
}

// Line is one product variant in the cart.
type Line struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Color     string          `json:"color,omitempty"`
	Size      string          `json:"size,omitempty"`
	AddedAt   time.Time       `json:"addedAt"`
}

// Key returns the merge key of l.
func (l Line) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Color: l.Color, Size: l.Size}.normalize()
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) validate() error {
	var fields []string
	if strings.TrimSpace(l.ProductID) == "" {
		fields = append(fields, "id")
	}
	if l.Quantity < 1 || l.Quantity > MaxQuantity {
		fields = append(fields, "quantity")
	}
	if l.UnitPrice.IsNegative() {
		fields = append(fields, "price")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Cart is an ordered list of lines, oldest first.
type Cart struct {
	Lines []Line `json:"lines"`
}

// Add merges l into the cart. A line with the same key has its quantity
// increased, up to MaxQuantity; otherwise l is appended.
func (c *Cart) Add(l Line) error {
	if err := l.validate(); err != nil {
		return err
	}
	k := l.Key()
	l.ProductID, l.Color, l.Size = k.ProductID, k.Color, k.Size
	for i := range c.Lines {
		if c.Lines[i].Key() == k {
			if c.Lines[i].Quantity > MaxQuantity-l.Quantity {
				return &ValidationError{Fields: []string{"quantity"}}
			}
			c.Lines[i].Quantity += l.Quantity
			return nil
		}
	}
	c.Lines = append(c.Lines, l)
	return nil
}

// SetQuantity changes the quantity of the line at k. A quantity below 1
// removes the line.
func (c *Cart) SetQuantity(k LineKey, qty int) error {
	if qty < 1 {
		return c.Remove(k)
	}
	if qty > MaxQuantity {
		return &ValidationError{Fields: []string{"quantity"}}
	}
	k = k.normalize()
	for i := range c.Lines {
		if c.Lines[i].Key() == k {
			c.Lines[i].Quantity = qty
			return nil
		}
	}
	return ErrLineNotFound
}

// Remove deletes the line at k.
func (c *Cart) Remove(k LineKey) error {
	k = k.normalize()
	for i := range c.Lines {
		if c.Lines[i].Key() == k {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// Subtotal returns the sum of line totals.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// ItemCount returns the total quantity across lines.
func (c Cart) ItemCount() int {
	var n int
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool { return len(c.Lines) == 0 }
