// Package templates registers the custom measurement types shipped with the
// application.
package templates

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/money"
)

// Default returns a registry holding every built-in template.
func Default() *measurement.Registry {
	reg, err := measurement.NewRegistry(Reinforcement(), Painting(), Earthwork())
	if err != nil {
		panic(err)
	}
	return reg
}

// base implements the parts of measurement.Template shared by the built-ins.
// recordFn totals one record; Total sums it across records.
type base struct {
	name     string
	arity    int
	captions []string
	types    []measurement.ColumnType
	recordFn func(values []decimal.Decimal, userData map[string]string) []decimal.Decimal
}

func (b base) Name() string                          { return b.name }
func (b base) Arity() int                            { return b.arity }
func (b base) Captions() []string                    { return b.captions }
func (b base) ColumnTypes() []measurement.ColumnType { return b.types }

func (b base) Render(column int, value string) string {
	if column < 0 || column >= len(b.types) || b.types[column] == measurement.ColumnText {
		return value
	}
	d, err := money.Parse(value)
	if err != nil {
		return value
	}
	if b.types[column] == measurement.ColumnInt {
		return d.Truncate(0).String()
	}
	return money.Format(d, money.QuantityPlaces)
}

func (b base) RecordTotal(record []string, userData map[string]string) ([]decimal.Decimal, error) {
	values := make([]decimal.Decimal, len(b.types))
	for i, typ := range b.types {
		if typ == measurement.ColumnText {
			continue
		}
		cell := ""
		if i < len(record) {
			cell = record[i]
		}
		v, err := money.Parse(cell)
		if err != nil {
			return nil, fmt.Errorf("%s: column %q: %w", b.name, b.captions[i], err)
		}
		values[i] = v
	}
	return b.recordFn(values, userData), nil
}

func (b base) Total(records [][]string, userData map[string]string) ([]decimal.Decimal, error) {
	totals := make([]decimal.Decimal, b.arity)
	for i := range totals {
		totals[i] = decimal.Zero
	}
	for _, rec := range records {
		row, err := b.RecordTotal(rec, userData)
		if err != nil {
			return nil, err
		}
		for i := range totals {
			totals[i] = totals[i].Add(row[i])
		}
	}
	for i := range totals {
		totals[i] = totals[i].Round(money.QuantityPlaces)
	}
	return totals, nil
}

func (b base) ExportAbstract(records [][]string, userData map[string]string) (string, []decimal.Decimal, error) {
	totals, err := b.Total(records, userData)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s (%d records)", b.name, len(records)), totals, nil
}

// product multiplies the non-zero values.
func product(values ...decimal.Decimal) decimal.Decimal {
	out := decimal.Zero
	seen := false
	for _, v := range values {
		if v.IsZero() {
			continue
		}
		if !seen {
			out, seen = v, true
			continue
		}
		out = out.Mul(v)
	}
	return out
}

func userDecimal(userData map[string]string, key string, fallback decimal.Decimal) decimal.Decimal {
	raw, ok := userData[key]
	if !ok {
		return fallback
	}
	v, err := money.Parse(raw)
	if err != nil || v.IsZero() {
		return fallback
	}
	return v
}

var steelDivisor = decimal.NewFromInt(162)

// Reinforcement bills bar weight in kg: no × length × dia² / 162.
func Reinforcement() measurement.Template {
	return base{
		name:     "reinforcement",
		arity:    1,
		captions: []string{"Description", "Dia (mm)", "No.", "Length (m)"},
		types:    []measurement.ColumnType{measurement.ColumnText, measurement.ColumnFloat, measurement.ColumnFloat, measurement.ColumnFloat},
		recordFn: func(v []decimal.Decimal, _ map[string]string) []decimal.Decimal {
			dia := v[1]
			weight := v[2].Mul(v[3]).Mul(dia).Mul(dia).Div(steelDivisor)
			return []decimal.Decimal{weight}
		},
	}
}

// Painting bills area scaled by a surface coefficient, 1 when blank.
func Painting() measurement.Template {
	return base{
		name:     "painting",
		arity:    1,
		captions: []string{"Description", "No.", "Length", "Height", "Coefficient"},
		types:    []measurement.ColumnType{measurement.ColumnText, measurement.ColumnFloat, measurement.ColumnFloat, measurement.ColumnFloat, measurement.ColumnFloat},
		recordFn: func(v []decimal.Decimal, _ map[string]string) []decimal.Decimal {
			coeff := v[4]
			if coeff.IsZero() {
				coeff = decimal.NewFromInt(1)
			}
			return []decimal.Decimal{product(v[1], v[2], v[3]).Mul(coeff)}
		},
	}
}

// Earthwork bills excavation to the first itemno and refilling to the second.
// The refilled share comes from user data key "refill_percent", default 100.
func Earthwork() measurement.Template {
	return base{
		name:     "earthwork",
		arity:    2,
		captions: []string{"Description", "No.", "Length", "Breadth", "Depth"},
		types:    []measurement.ColumnType{measurement.ColumnText, measurement.ColumnFloat, measurement.ColumnFloat, measurement.ColumnFloat, measurement.ColumnFloat},
		recordFn: func(v []decimal.Decimal, userData map[string]string) []decimal.Decimal {
			volume := product(v[1], v[2], v[3], v[4])
			share := userDecimal(userData, "refill_percent", decimal.NewFromInt(100))
			return []decimal.Decimal{volume, money.Percent(volume, share)}
		},
	}
}
