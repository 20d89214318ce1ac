package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply computes the discount p grants on lines. It returns ErrInvalidCode
// when the lines do not satisfy MinItems.
func Apply(p *Promotion, lines []Line) (Discount, error) {
	if p.MinItems > 0 && totalQuantity(lines) < p.MinItems {
		return Discount{}, ErrInvalidCode
	}

	subtotal := Subtotal(lines)

	var amount decimal.Decimal
	switch p.Kind {
	case KindPercentage:
		amount = subtotal.Mul(p.Value).Div(hundred)
	case KindFixed:
		amount = decimal.Min(p.Value, subtotal)
	case KindFreeLowest:
		amount = lowestUnitPrice(lines)
	default:
		return Discount{}, errors.Errorf("unsupported promotion kind: %q", p.Kind)
	}

	if p.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, p.MaxDiscount)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{
		Amount:      amount.Round(2),
		Description: p.Description,
	}, nil
}

// Subtotal returns the sum of price * quantity across lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

func totalQuantity(lines []Line) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}

func lowestUnitPrice(lines []Line) decimal.Decimal {
	if len(lines) == 0 {
		return decimal.Zero
	}
	lowest := lines[0].Price
	for _, l := range lines[1:] {
		if l.Price.LessThan(lowest) {
			lowest = l.Price
		}
	}
	return lowest
}
