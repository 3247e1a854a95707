package export

import (
	"encoding/csv"
	"io"

	"github.com/cmbworks/cmbworks/internal/billing"
)

// WriteBillCSV emits the bill table followed by its totals.
func WriteBillCSV(w io.Writer, snap billing.Snapshot) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{snap.Title, string(snap.Type), snap.BillDate}); err != nil {
		return err
	}
	if err := writer.Write(lineHeader); err != nil {
		return err
	}
	for _, line := range snap.Lines {
		if err := writer.Write(lineRecord(line)); err != nil {
			return err
		}
	}
	for _, t := range totals(snap) {
		if err := writer.Write([]string{"", t.label, t.value}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
