package inventory

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/go-faster/errors"
)

var exportHeader = []string{"SKU", "Product Name", "Stock Level", "Category", "Status"}

// ExportFilename is the download name for an export produced at now.
func ExportFilename(now time.Time) string {
	return "inventory-export-" + now.Format(time.DateOnly) + ".csv"
}

// WriteCSV writes one row per record in the given order.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, r := range records {
		row := []string{r.SKU, r.Name, strconv.Itoa(r.Stock), r.Category, string(r.Status())}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write %s", r.SKU)
		}
	}
	cw.Flush()
	return cw.Error()
}
