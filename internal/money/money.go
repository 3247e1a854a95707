// Package money holds the rounding contracts shared by every amount and
// quantity the billing engine produces.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

const (
	// CurrencyPlaces is the precision of monetary amounts.
	CurrencyPlaces int32 = 2
	// LimitPlaces is the precision of a deviation limit for measured units.
	LimitPlaces int32 = 2
	// QuantityPlaces is the precision of brought-forward quantities.
	QuantityPlaces int32 = 3
)

// integerUnits lists units whose quantities cannot be fractional. Keys are
// case folded with surrounding dots and spaces removed.
var integerUnits = map[string]struct{}{
	"no": {}, "nos": {}, "number": {}, "numbers": {},
	"each": {}, "ea": {},
	"lot": {}, "lots": {},
	"set": {}, "sets": {},
	"pair": {}, "pairs": {},
	"job": {}, "jobs": {},
	"point": {}, "points": {},
	"ls": {}, "l.s": {}, "lumpsum": {}, "lump sum": {}, "lump-sum": {},
	"unit": {}, "units": {},
	"item": {}, "items": {},
}

// Currency rounds an amount to two decimals, half away from zero.
func Currency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// CurrencyR rounds an amount to a whole currency unit, half away from zero.
func CurrencyR(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// Percent returns pct percent of value without intermediate rounding.
func Percent(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).Shift(-2)
}

// Grow returns value increased by pct percent.
func Grow(value, pct decimal.Decimal) decimal.Decimal {
	return value.Add(Percent(value, pct))
}

// IsIntegerUnit reports whether unit is a countable unit of measure.
func IsIntegerUnit(unit string) bool {
	key := cases.Fold().String(strings.Trim(strings.TrimSpace(unit), "."))
	_, ok := integerUnits[key]
	return ok
}

// RoundQuantity floors qty for countable units and rounds it to places
// decimals otherwise.
func RoundQuantity(qty decimal.Decimal, unit string, places int32) decimal.Decimal {
	if IsIntegerUnit(unit) {
		return qty.Floor()
	}
	return qty.Round(places)
}

// Sum adds values.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Format renders d with a fixed number of decimals.
func Format(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

// Parse reads a decimal, treating blank input as zero.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
