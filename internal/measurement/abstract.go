package measurement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cmbworks/cmbworks/internal/money"
)

const abstractTemplateName = "abstract"

// abstractTemplate lays brought-forward rows out as
// [source path, description, value per itemno slot...].
type abstractTemplate struct {
	arity int
}

func (t abstractTemplate) Name() string { return abstractTemplateName }
func (t abstractTemplate) Arity() int   { return t.arity }

func (t abstractTemplate) Captions() []string {
	captions := []string{"Path", "Description"}
	for i := 0; i < t.arity; i++ {
		captions = append(captions, fmt.Sprintf("Qty %d", i+1))
	}
	return captions
}

func (t abstractTemplate) ColumnTypes() []ColumnType {
	types := []ColumnType{ColumnText, ColumnText}
	for i := 0; i < t.arity; i++ {
		types = append(types, ColumnFloat)
	}
	return types
}

func (t abstractTemplate) Render(column int, value string) string {
	if column < 2 {
		return value
	}
	d, err := money.Parse(value)
	if err != nil {
		return value
	}
	return money.Format(d, money.QuantityPlaces)
}

func (t abstractTemplate) RecordTotal(record []string, _ map[string]string) ([]decimal.Decimal, error) {
	totals := zeros(t.arity)
	for i := 0; i < t.arity; i++ {
		col := i + 2
		if col >= len(record) {
			break
		}
		v, err := money.Parse(record[col])
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", col, err)
		}
		totals[i] = v
	}
	return totals, nil
}

func (t abstractTemplate) Total(records [][]string, userData map[string]string) ([]decimal.Decimal, error) {
	totals := zeros(t.arity)
	for _, rec := range records {
		row, err := t.RecordTotal(rec, userData)
		if err != nil {
			return nil, err
		}
		for i := range totals {
			totals[i] = totals[i].Add(row[i])
		}
	}
	return totals, nil
}

func (t abstractTemplate) ExportAbstract(records [][]string, userData map[string]string) (string, []decimal.Decimal, error) {
	totals, err := t.Total(records, userData)
	return "Abstract", totals, err
}

// Abstract carries quantities of other items forward. Its records are copies
// of the source totals tagged with the source path.
type Abstract struct {
	*Custom
}

// NewAbstract builds an abstract over the items at paths. When itemnos is
// empty the slots are the union of source itemnos in first-seen order. Source
// values are mapped onto slots by itemno; sources that cannot be resolved are
// skipped and reported in the returned error.
func NewAbstract(tree *Tree, itemnos []string, paths []Path, remark string) (*Abstract, error) {
	type source struct {
		path    Path
		desc    string
		itemnos []string
		values  []decimal.Decimal
	}
	var errs []error
	sources := make([]source, 0, len(paths))
	for _, p := range paths {
		item, err := tree.Item(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if item.Kind() == KindHeading {
			errs = append(errs, fmt.Errorf("%w: %s is a heading", ErrPathNotFound, p))
			continue
		}
		desc, values, err := exportAbstract(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
		sources = append(sources, source{path: p, desc: desc, itemnos: item.Itemnos(), values: values})
	}

	if len(itemnos) == 0 {
		seen := make(map[string]bool)
		for _, src := range sources {
			for _, itemno := range src.itemnos {
				if itemno == "" || seen[itemno] {
					continue
				}
				seen[itemno] = true
				itemnos = append(itemnos, itemno)
			}
		}
	}
	slot := make(map[string]int, len(itemnos))
	for i, itemno := range itemnos {
		slot[strings.TrimSpace(itemno)] = i
	}

	records := make([][]string, 0, len(sources))
	for _, src := range sources {
		mapped := zeros(len(itemnos))
		for i, itemno := range src.itemnos {
			j, ok := slot[itemno]
			if !ok || i >= len(src.values) {
				continue
			}
			mapped[j] = mapped[j].Add(src.values[i])
		}
		row := []string{src.path.String(), src.desc}
		for _, v := range mapped {
			row = append(row, money.Format(v.Round(money.QuantityPlaces), money.QuantityPlaces))
		}
		records = append(records, row)
	}

	custom, err := NewCustom(abstractTemplate{arity: len(itemnos)}, itemnos, remark, records, nil)
	if err != nil {
		return nil, err
	}
	return &Abstract{Custom: custom}, errors.Join(errs...)
}

// newAbstractFromRecords rebuilds a persisted abstract.
func newAbstractFromRecords(itemnos []string, remark string, records [][]string) *Abstract {
	custom, _ := NewCustom(abstractTemplate{arity: len(itemnos)}, itemnos, remark, records, nil)
	return &Abstract{Custom: custom}
}

func (a *Abstract) Kind() Kind { return KindAbstract }

// SourcePaths returns the paths of the items carried forward.
func (a *Abstract) SourcePaths() []Path {
	paths := make([]Path, 0, len(a.Records))
	for _, rec := range a.Records {
		if len(rec) == 0 {
			continue
		}
		p, err := ParsePath(rec[0])
		if err != nil {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

func exportAbstract(item Item) (string, []decimal.Decimal, error) {
	if exp, ok := item.(AbstractExporter); ok {
		return exp.ExportAbstract()
	}
	totals, err := item.Totals()
	return item.Remark(), totals, err
}
