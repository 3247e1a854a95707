package schedule

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultExcessRatePercent is the deviation allowed over the contracted
// quantity before the excess rate applies.
var DefaultExcessRatePercent = decimal.NewFromInt(30)

var (
	// ErrDuplicateItem occurs when an itemno is added twice.
	ErrDuplicateItem = errors.New("schedule: duplicate itemno")
	// ErrItemNotFound occurs when an itemno or index is unknown.
	ErrItemNotFound = errors.New("schedule: item not found")
	// ErrEmptyItemno occurs when an item has no itemno.
	ErrEmptyItemno = errors.New("schedule: itemno required")
)

// Item is one rated row of the schedule of agreed rates.
type Item struct {
	Itemno            string          `json:"itemno" yaml:"itemno" validate:"required"`
	Description       string          `json:"description" yaml:"description"`
	Unit              string          `json:"unit" yaml:"unit"`
	Rate              decimal.Decimal `json:"rate" yaml:"rate"`
	Qty               decimal.Decimal `json:"qty" yaml:"qty"`
	ExcessRatePercent decimal.Decimal `json:"excess_rate_percent" yaml:"excess_rate_percent"`
	// PercentageEligible opts the item in to the bill level percentage.
	PercentageEligible bool `json:"percentage_eligible" yaml:"percentage_eligible"`
}

// NewItem builds an item carrying the default deviation allowance.
func NewItem(itemno, description, unit string, rate, qty decimal.Decimal) Item {
	return Item{
		Itemno:            itemno,
		Description:       description,
		Unit:              unit,
		Rate:              rate,
		Qty:               qty,
		ExcessRatePercent: DefaultExcessRatePercent,
	}
}

// IsHeading reports whether the row only groups other rows.
func (i Item) IsHeading() bool {
	return strings.TrimSpace(i.Unit) == "" && i.Qty.IsZero() && i.Rate.IsZero()
}
