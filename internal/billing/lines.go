package billing

import (
	"github.com/shopspring/decimal"

	"github.com/cmbworks/cmbworks/internal/schedule"
)

// Line is one row of the bill table handed to renderers.
type Line struct {
	Itemno       string
	Description  string
	Unit         string
	Qty          decimal.Decimal
	NormalQty    decimal.Decimal
	ExcessQty    decimal.Decimal
	NormalRate   decimal.Decimal
	ExcessRate   decimal.Decimal
	NormalAmount decimal.Decimal
	ExcessAmount decimal.Decimal
	Amount       decimal.Decimal
	Sources      []Contribution
}

// Lines returns the rendering table in schedule order. A final bill lists
// every rated item so zero execution is shown; other bills skip items with
// neither quantity nor amount.
func (b *Bill) Lines(s *schedule.Schedule) []Line {
	lines := make([]Line, 0, len(b.Itemnos))
	for _, itemno := range b.Itemnos {
		r := b.Items[itemno]
		if r == nil {
			continue
		}
		if b.Data.Type != BillFinal && r.Qty.IsZero() && r.Amount().IsZero() {
			continue
		}
		line := Line{
			Itemno:       itemno,
			Qty:          r.Qty,
			NormalQty:    r.NormalQty,
			ExcessQty:    r.ExcessQty,
			NormalRate:   r.NormalRate,
			ExcessRate:   r.ExcessRate,
			NormalAmount: r.NormalAmount,
			ExcessAmount: r.ExcessAmount,
			Amount:       r.Amount(),
			Sources:      append([]Contribution(nil), r.Contributions...),
		}
		if item, ok := s.Get(itemno); ok {
			line.Description = s.ExtendedDescription(itemno)
			line.Unit = item.Unit
		}
		lines = append(lines, line)
	}
	return lines
}
