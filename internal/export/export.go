// Package export renders computed bills for spreadsheets.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cmbworks/cmbworks/internal/billing"
)

// Format names an output format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat occurs when a format name is not supported.
var ErrUnknownFormat = errors.New("export: unknown format")

// ParseFormat reads a format name, case insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Write renders snap in format f.
func Write(w io.Writer, f Format, snap billing.Snapshot) error {
	switch f {
	case FormatCSV:
		return WriteBillCSV(w, snap)
	case FormatXLSX:
		return WriteBillXLSX(w, snap)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// FileName is the suggested download name of a bill.
func FileName(snap billing.Snapshot, f Format) string {
	return fmt.Sprintf("bill-%d.%s", snap.Index+1, f)
}

var lineHeader = []string{
	"Item No", "Description", "Unit", "Qty", "Normal Qty", "Excess Qty",
	"Normal Rate", "Excess Rate", "Normal Amount", "Excess Amount", "Amount",
}

func lineRecord(l billing.SnapshotLine) []string {
	return []string{
		l.Itemno, l.Description, l.Unit, l.Qty, l.NormalQty, l.ExcessQty,
		l.NormalRate, l.ExcessRate, l.NormalAmount, l.ExcessAmount, l.Amount,
	}
}

type total struct {
	label string
	value string
}

func totals(snap billing.Snapshot) []total {
	out := []total{
		{"Total", snap.TotalAmount},
		{"Total eligible for percentage", snap.TotalAmountPlusMinus},
		{"Percentage amount", snap.PlusMinusAmount},
		{"Net total", snap.NetTotalAmount},
		{"Since previous bill", snap.SincePrevAmount},
	}
	for _, adj := range snap.Adjustments {
		out = append(out, total{"Adjustment: " + adj.Description, adj.Amount.StringFixed(2)})
	}
	return append(out, total{"Net payable", snap.NetPayableAmount})
}
