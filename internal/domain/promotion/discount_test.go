package promotion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		promo      *Promotion
		lines      []Line
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name:       "percentage off subtotal",
			promo:      &Promotion{Code: "PCT18", Kind: KindPercentage, Value: d("18")},
			lines:      []Line{{ProductID: "p1", Price: d("50"), Quantity: 2}},
			wantAmount: d("18"),
		},
		{
			name:       "percentage rounds to cents",
			promo:      &Promotion{Code: "PCT15", Kind: KindPercentage, Value: d("15")},
			lines:      []Line{{ProductID: "p1", Price: d("9.99"), Quantity: 1}},
			wantAmount: d("1.50"),
		},
		{
			name:       "percentage capped by max discount",
			promo:      &Promotion{Code: "HALF", Kind: KindPercentage, Value: d("50"), MaxDiscount: d("30")},
			lines:      []Line{{ProductID: "p1", Price: d("100"), Quantity: 1}},
			wantAmount: d("30"),
		},
		{
			name:       "fixed below subtotal",
			promo:      &Promotion{Code: "FIVE", Kind: KindFixed, Value: d("5")},
			lines:      []Line{{ProductID: "p1", Price: d("20"), Quantity: 1}},
			wantAmount: d("5"),
		},
		{
			name:       "fixed capped at subtotal",
			promo:      &Promotion{Code: "BIG", Kind: KindFixed, Value: d("500")},
			lines:      []Line{{ProductID: "p1", Price: d("20"), Quantity: 2}},
			wantAmount: d("40"),
		},
		{
			name:  "free lowest takes cheapest unit price",
			promo: &Promotion{Code: "BOGO", Kind: KindFreeLowest, MinItems: 2},
			lines: []Line{
				{ProductID: "p1", Price: d("30"), Quantity: 1},
				{ProductID: "p2", Price: d("12.50"), Quantity: 3},
			},
			wantAmount: d("12.50"),
		},
		{
			name:    "min items not met",
			promo:   &Promotion{Code: "BOGO", Kind: KindFreeLowest, MinItems: 2},
			lines:   []Line{{ProductID: "p1", Price: d("30"), Quantity: 1}},
			wantErr: ErrInvalidCode,
		},
		{
			name:       "empty lines give zero",
			promo:      &Promotion{Code: "LOW", Kind: KindFreeLowest},
			wantAmount: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.promo, tt.lines)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantAmount.Equal(got.Amount), "expected %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}

func TestApply_UnsupportedKind(t *testing.T) {
	_, err := Apply(&Promotion{Code: "X", Kind: "mystery"}, []Line{{ProductID: "p1", Price: d("1"), Quantity: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported promotion kind")
}
