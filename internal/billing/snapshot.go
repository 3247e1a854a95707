package billing

import (
	"github.com/cmbworks/cmbworks/internal/money"
	"github.com/cmbworks/cmbworks/internal/schedule"
)

// Snapshot is the read-only, serialisable view of a computed bill. Amounts are
// fixed point strings so no binary float reaches a client.
type Snapshot struct {
	Index                int            `json:"index"`
	Title                string         `json:"title"`
	Type                 BillType       `json:"bill_type"`
	BillDate             string         `json:"bill_date,omitempty"`
	CMBName              string         `json:"cmb_name,omitempty"`
	PrevBill             *int           `json:"prev_bill,omitempty"`
	CMBRef               []int          `json:"cmb_ref"`
	Lines                []SnapshotLine `json:"lines"`
	TotalAmount          string         `json:"bill_total_amount"`
	TotalAmountPlusMinus string         `json:"bill_total_amount_plus_minus"`
	PlusMinusAmount      string         `json:"bill_plusminus_amount"`
	NetTotalAmount       string         `json:"bill_nettotal_amount"`
	SincePrevAmount      string         `json:"bill_since_prev_amount"`
	NetPayableAmount     string         `json:"bill_netpayable_amount"`
	Adjustments          []Adjustment   `json:"adjustments,omitempty"`
	Warnings             []Warning      `json:"warnings,omitempty"`
}

// SnapshotLine is Line with formatted values.
type SnapshotLine struct {
	Itemno       string           `json:"itemno"`
	Description  string           `json:"description"`
	Unit         string           `json:"unit"`
	Qty          string           `json:"item_qty"`
	NormalQty    string           `json:"item_normal_qty"`
	ExcessQty    string           `json:"item_excess_qty"`
	NormalRate   string           `json:"item_normal_rate"`
	ExcessRate   string           `json:"item_excess_rate"`
	NormalAmount string           `json:"item_normal_amount"`
	ExcessAmount string           `json:"item_excess_amount"`
	Amount       string           `json:"item_amount"`
	Sources      []SnapshotSource `json:"sources,omitempty"`
}

// SnapshotSource is one formatted contribution.
type SnapshotSource struct {
	Source int    `json:"source"`
	Path   string `json:"path,omitempty"`
	Qty    string `json:"qty"`
}

// Snapshot renders b against the schedule it was computed with.
func (b *Bill) Snapshot(s *schedule.Schedule) Snapshot {
	snap := Snapshot{
		Index:                b.Index,
		Title:                b.Data.Title,
		Type:                 b.Data.Type,
		BillDate:             b.Data.BillDate,
		CMBName:              b.Data.CMBName,
		PrevBill:             b.Data.PrevBill,
		CMBRef:               append([]int{}, b.CMBRef...),
		TotalAmount:          money.Format(b.TotalAmount, money.CurrencyPlaces),
		TotalAmountPlusMinus: money.Format(b.TotalAmountPlusMinus, money.CurrencyPlaces),
		PlusMinusAmount:      money.Format(b.PlusMinusAmount, money.CurrencyPlaces),
		NetTotalAmount:       money.Format(b.NetTotalAmount, money.CurrencyPlaces),
		SincePrevAmount:      money.Format(b.SincePrevAmount, money.CurrencyPlaces),
		NetPayableAmount:     money.Format(b.NetPayableAmount, 0),
		Adjustments:          b.Data.Adjustments,
		Warnings:             b.Warnings,
	}
	for _, line := range b.Lines(s) {
		sl := SnapshotLine{
			Itemno:       line.Itemno,
			Description:  line.Description,
			Unit:         line.Unit,
			Qty:          money.Format(line.Qty, money.QuantityPlaces),
			NormalQty:    money.Format(line.NormalQty, money.QuantityPlaces),
			ExcessQty:    money.Format(line.ExcessQty, money.QuantityPlaces),
			NormalRate:   money.Format(line.NormalRate, money.CurrencyPlaces),
			ExcessRate:   money.Format(line.ExcessRate, money.CurrencyPlaces),
			NormalAmount: money.Format(line.NormalAmount, money.CurrencyPlaces),
			ExcessAmount: money.Format(line.ExcessAmount, money.CurrencyPlaces),
			Amount:       money.Format(line.Amount, money.CurrencyPlaces),
		}
		for _, c := range line.Sources {
			src := SnapshotSource{Source: c.Source, Qty: money.Format(c.Qty, money.QuantityPlaces)}
			if c.Source >= 0 {
				src.Path = c.Path.String()
			}
			sl.Sources = append(sl.Sources, src)
		}
		snap.Lines = append(snap.Lines, sl)
	}
	if snap.Lines == nil {
		snap.Lines = []SnapshotLine{}
	}
	return snap
}
