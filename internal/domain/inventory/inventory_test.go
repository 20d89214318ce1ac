package inventory

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		threshold *int
		want      Status
	}{
		{name: "zero ignores threshold", stock: 0, threshold: intPtr(10), want: StatusOutOfStock},
		{name: "zero without threshold", stock: 0, want: StatusOutOfStock},
		{name: "below threshold", stock: 5, threshold: intPtr(10), want: StatusLowStock},
		{name: "at threshold", stock: 5, threshold: intPtr(5), want: StatusLowStock},
		{name: "no threshold", stock: 5, want: StatusInStock},
		{name: "above threshold", stock: 5, threshold: intPtr(3), want: StatusInStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.stock, tt.threshold))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, ok := ParseStatus("low_stock")
	require.True(t, ok)
	assert.Equal(t, StatusLowStock, st)

	_, ok = ParseStatus("discontinued")
	assert.False(t, ok)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		mode       Mode
		qty        int
		wantNext   int
		wantChange int
	}{
		{name: "add", current: 10, mode: ModeAdd, qty: 5, wantNext: 15, wantChange: 5},
		{name: "subtract floors at zero", current: 3, mode: ModeSubtract, qty: 10, wantNext: 0, wantChange: -3},
		{name: "subtract", current: 10, mode: ModeSubtract, qty: 4, wantNext: 6, wantChange: -4},
		{name: "set", current: 7, mode: ModeSet, qty: 20, wantNext: 20, wantChange: 13},
		{name: "set no-op", current: 5, mode: ModeSet, qty: 5, wantNext: 5, wantChange: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, change, err := Compute(tt.current, tt.mode, tt.qty)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.wantChange, change)
			assert.Equal(t, next-tt.current, change)
		})
	}

	_, _, err := Compute(1, "multiply", 2)
	require.Error(t, err)
}

func TestCompute_AddBeyondMaxStock(t *testing.T) {
	next, _, err := Compute(MaxStock-5, ModeAdd, 5)
	require.NoError(t, err)
	assert.Equal(t, MaxStock, next)

	for _, qty := range []int{6, MaxStock, math.MaxInt} {
		_, _, err := Compute(MaxStock-5, ModeAdd, qty)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "qty %d", qty)
		assert.Equal(t, []string{"quantity"}, ve.Fields)
	}
}

func TestWriteCSV(t *testing.T) {
	records := []Record{
		{SKU: "TSH-001", Name: "Linen Shirt", Stock: 12, Category: "Apparel", MinStockThreshold: intPtr(5)},
		{SKU: "MUG-002", Name: "Mug, \"Large\"", Stock: 0, Category: "Home"},
		{SKU: "SCK-003", Name: "Socks", Stock: 2, Category: "Apparel", MinStockThreshold: intPtr(5)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	want := "SKU,Product Name,Stock Level,Category,Status\n" +
		"TSH-001,Linen Shirt,12,Apparel,in_stock\n" +
		"MUG-002,\"Mug, \"\"Large\"\"\",0,Home,out_of_stock\n" +
		"SCK-003,Socks,2,Apparel,low_stock\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "SKU,Product Name,Stock Level,Category,Status\n", buf.String())
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2026, 2, 3, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "inventory-export-2026-02-03.csv", ExportFilename(now))
}
