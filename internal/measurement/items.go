package measurement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Heading groups items inside a measurement and bills nothing.
type Heading struct {
	Common
}

// NewHeading builds a heading row.
func NewHeading(remark string) *Heading {
	return &Heading{Common: Common{Note: remark}}
}

func (h *Heading) Kind() Kind { return KindHeading }

// Totals is always empty for headings.
func (h *Heading) Totals() ([]decimal.Decimal, error) { return nil, nil }

// NLBHRecord is a number × length × breadth × height measurement line.
type NLBHRecord struct {
	Description string
	Number      decimal.Decimal
	Length      decimal.Decimal
	Breadth     decimal.Decimal
	Height      decimal.Decimal
}

// Total multiplies every non-zero dimension. A record with no dimension
// totals zero.
func (r NLBHRecord) Total() decimal.Decimal {
	total := decimal.Zero
	seen := false
	for _, v := range []decimal.Decimal{r.Number, r.Length, r.Breadth, r.Height} {
		if v.IsZero() {
			continue
		}
		if !seen {
			total = v
			seen = true
			continue
		}
		total = total.Mul(v)
	}
	return total
}

// NLBH bills dimension records against a single itemno.
type NLBH struct {
	Common
	Records []NLBHRecord
}

// NewNLBH builds a dimension item for itemno.
func NewNLBH(itemno, remark string, records ...NLBHRecord) *NLBH {
	return &NLBH{Common: newCommon([]string{itemno}, remark), Records: records}
}

func (n *NLBH) Kind() Kind { return KindNLBH }

// Totals sums record totals into the single slot.
func (n *NLBH) Totals() ([]decimal.Decimal, error) {
	total := decimal.Zero
	for _, rec := range n.Records {
		total = total.Add(rec.Total())
	}
	return []decimal.Decimal{total}, nil
}

// ExportAbstract brings the item total forward.
func (n *NLBH) ExportAbstract() (string, []decimal.Decimal, error) {
	totals, err := n.Totals()
	return n.Note, totals, err
}

// FieldsRecord is one line of a fixed-width layout, one value per itemno.
type FieldsRecord struct {
	Description string
	Values      []decimal.Decimal
}

// Fields bills each column of its records to its own itemno.
type Fields struct {
	Common
	Records []FieldsRecord
}

// FiveFieldArity and EightFieldArity are the widths of the standard layouts.
const (
	FiveFieldArity  = 5
	EightFieldArity = 8
)

// NewFields builds a layout with one column per itemno slot. Only the five
// and eight column widths exist; unused slots are left blank.
func NewFields(itemnos []string, remark string, records ...FieldsRecord) (*Fields, error) {
	if n := len(itemnos); n != FiveFieldArity && n != EightFieldArity {
		return nil, fmt.Errorf("%w: fields layout takes %d or %d itemnos, got %d", ErrArity, FiveFieldArity, EightFieldArity, n)
	}
	f := &Fields{Common: newCommon(itemnos, remark), Records: records}
	for i, rec := range records {
		if len(rec.Values) > len(itemnos) {
			return nil, fmt.Errorf("%w: record %d has %d values for %d itemnos", ErrArity, i, len(rec.Values), len(itemnos))
		}
	}
	return f, nil
}

// NewFiveField builds the five column layout.
func NewFiveField(itemnos [FiveFieldArity]string, remark string, records ...FieldsRecord) (*Fields, error) {
	return NewFields(itemnos[:], remark, records...)
}

// NewEightField builds the eight column layout.
func NewEightField(itemnos [EightFieldArity]string, remark string, records ...FieldsRecord) (*Fields, error) {
	return NewFields(itemnos[:], remark, records...)
}

func (f *Fields) Kind() Kind { return KindFields }

// Totals sums each column. Short records count missing columns as zero.
func (f *Fields) Totals() ([]decimal.Decimal, error) {
	totals := zeros(len(f.ItemnoSlots))
	for _, rec := range f.Records {
		for i, v := range rec.Values {
			if i >= len(totals) {
				break
			}
			totals[i] = totals[i].Add(v)
		}
	}
	return totals, nil
}

// ExportAbstract brings the column totals forward.
func (f *Fields) ExportAbstract() (string, []decimal.Decimal, error) {
	totals, err := f.Totals()
	return f.Note, totals, err
}
