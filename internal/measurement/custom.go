package measurement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Custom is a measurement item whose schema and totals come from a Template.
type Custom struct {
	Common
	TemplateName string
	Records      [][]string
	UserData     map[string]string

	template Template
}

// NewCustom builds a custom item bound to template t.
func NewCustom(t Template, itemnos []string, remark string, records [][]string, userData map[string]string) (*Custom, error) {
	if len(itemnos) != t.Arity() {
		return nil, fmt.Errorf("%w: template %s takes %d itemnos, got %d", ErrArity, t.Name(), t.Arity(), len(itemnos))
	}
	return &Custom{
		Common:       newCommon(itemnos, remark),
		TemplateName: t.Name(),
		Records:      records,
		UserData:     userData,
		template:     t,
	}, nil
}

func (c *Custom) Kind() Kind { return KindCustom }

// Template returns the bound template, nil when it failed to resolve.
func (c *Custom) Template() Template { return c.template }

// Bind attaches the resolved template.
func (c *Custom) Bind(t Template) { c.template = t }

// Totals asks the template for item totals. When that fails every record is
// totalled on its own and failing records count as zero.
func (c *Custom) Totals() ([]decimal.Decimal, error) {
	n := len(c.ItemnoSlots)
	if c.template == nil {
		return zeros(n), fmt.Errorf("%w: %s", ErrTemplateNotFound, c.TemplateName)
	}
	totals, err := guard(c.TemplateName, func() ([]decimal.Decimal, error) {
		return c.template.Total(c.Records, c.UserData)
	})
	if err == nil && len(totals) == n {
		return totals, nil
	}
	errs := []error{err}
	if err == nil {
		errs = []error{fmt.Errorf("%w: %s returned %d totals for %d itemnos", ErrArity, c.TemplateName, len(totals), n)}
	}
	totals = zeros(n)
	for i, rec := range c.Records {
		recTotals, recErr := guard(c.TemplateName, func() ([]decimal.Decimal, error) {
			return c.template.RecordTotal(rec, c.UserData)
		})
		if recErr != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, recErr))
			continue
		}
		for j := 0; j < n && j < len(recTotals); j++ {
			totals[j] = totals[j].Add(recTotals[j])
		}
	}
	return totals, errors.Join(errs...)
}

// ExportAbstract delegates to the template.
func (c *Custom) ExportAbstract() (string, []decimal.Decimal, error) {
	if c.template == nil {
		return c.Note, zeros(len(c.ItemnoSlots)), fmt.Errorf("%w: %s", ErrTemplateNotFound, c.TemplateName)
	}
	type row struct {
		desc   string
		values []decimal.Decimal
	}
	out, err := guard(c.TemplateName, func() (row, error) {
		desc, values, err := c.template.ExportAbstract(c.Records, c.UserData)
		return row{desc: desc, values: values}, err
	})
	if err != nil {
		totals, _ := c.Totals()
		return c.Note, totals, err
	}
	return out.desc, out.values, nil
}
