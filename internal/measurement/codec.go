package measurement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cmbworks/cmbworks/internal/money"
)

// ItemDoc is the storage form of any item variant. Records are rows of cell
// strings for every variant.
type ItemDoc struct {
	Kind        Kind              `json:"kind" yaml:"kind" validate:"required"`
	Itemnos     []string          `json:"itemnos,omitempty" yaml:"itemnos,omitempty"`
	Remark      string            `json:"remark,omitempty" yaml:"remark,omitempty"`
	ItemRemarks []string          `json:"item_remarks,omitempty" yaml:"item_remarks,omitempty"`
	Template    string            `json:"template,omitempty" yaml:"template,omitempty"`
	Records     [][]string        `json:"records,omitempty" yaml:"records,omitempty"`
	UserData    map[string]string `json:"user_data,omitempty" yaml:"user_data,omitempty"`
}

// MeasurementDoc is the storage form of a Measurement.
type MeasurementDoc struct {
	Caption string    `json:"caption" yaml:"caption"`
	Date    string    `json:"date,omitempty" yaml:"date,omitempty"`
	Items   []ItemDoc `json:"items" yaml:"items" validate:"dive"`
}

// CMBDoc is the storage form of a CMB.
type CMBDoc struct {
	Name         string           `json:"name" yaml:"name"`
	Measurements []MeasurementDoc `json:"measurements" yaml:"measurements" validate:"dive"`
}

// EncodeTree converts t to its storage form.
func EncodeTree(t *Tree) []CMBDoc {
	if t == nil {
		return nil
	}
	docs := make([]CMBDoc, len(t.CMBs))
	for c, cmb := range t.CMBs {
		docs[c] = CMBDoc{Name: cmb.Name, Measurements: make([]MeasurementDoc, len(cmb.Measurements))}
		for m, meas := range cmb.Measurements {
			md := MeasurementDoc{Caption: meas.Caption, Date: meas.Date, Items: make([]ItemDoc, 0, len(meas.Items))}
			for _, item := range meas.Items {
				md.Items = append(md.Items, EncodeItem(item))
			}
			docs[c].Measurements[m] = md
		}
	}
	return docs
}

// DecodeTree rebuilds a tree. Custom items whose template is not registered
// are kept unbound so they total zero; the returned error lists them.
func DecodeTree(docs []CMBDoc, registry *Registry) (*Tree, error) {
	tree := &Tree{CMBs: make([]CMB, len(docs))}
	var soft []error
	for c, cd := range docs {
		tree.CMBs[c] = CMB{Name: cd.Name, Measurements: make([]Measurement, len(cd.Measurements))}
		for m, md := range cd.Measurements {
			meas := Measurement{Caption: md.Caption, Date: md.Date, Items: make([]Item, 0, len(md.Items))}
			for i, doc := range md.Items {
				item, err := DecodeItem(doc, registry)
				if err != nil {
					if item == nil {
						return nil, fmt.Errorf("decode %s: %w", Path{CMB: c, Measurement: m, Item: i}, err)
					}
					soft = append(soft, fmt.Errorf("%s: %w", Path{CMB: c, Measurement: m, Item: i}, err))
				}
				meas.Items = append(meas.Items, item)
			}
			tree.CMBs[c].Measurements[m] = meas
		}
	}
	return tree, errors.Join(soft...)
}

// EncodeItem converts item to its storage form.
func EncodeItem(item Item) ItemDoc {
	doc := ItemDoc{Kind: item.Kind(), Itemnos: item.Itemnos(), Remark: item.Remark()}
	switch v := item.(type) {
	case *Heading:
		doc.Itemnos = nil
	case *NLBH:
		doc.ItemRemarks = v.ItemRemarks
		for _, rec := range v.Records {
			doc.Records = append(doc.Records, []string{
				rec.Description,
				rec.Number.String(),
				rec.Length.String(),
				rec.Breadth.String(),
				rec.Height.String(),
			})
		}
	case *Fields:
		doc.ItemRemarks = v.ItemRemarks
		for _, rec := range v.Records {
			row := []string{rec.Description}
			for _, val := range rec.Values {
				row = append(row, val.String())
			}
			doc.Records = append(doc.Records, row)
		}
	case *Abstract:
		doc.ItemRemarks = v.ItemRemarks
		doc.Records = v.Records
	case *Custom:
		doc.ItemRemarks = v.ItemRemarks
		doc.Template = v.TemplateName
		doc.Records = v.Records
		doc.UserData = v.UserData
	}
	return doc
}

// DecodeItem rebuilds an item. A non-nil item with a non-nil error is a
// custom item left unbound.
func DecodeItem(doc ItemDoc, registry *Registry) (Item, error) {
	switch doc.Kind {
	case KindHeading:
		return NewHeading(doc.Remark), nil
	case KindNLBH:
		if len(doc.Itemnos) != 1 {
			return nil, fmt.Errorf("%w: nlbh takes 1 itemno, got %d", ErrArity, len(doc.Itemnos))
		}
		records := make([]NLBHRecord, 0, len(doc.Records))
		for i, row := range doc.Records {
			cells, err := parseCells(row, 1, 4)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			records = append(records, NLBHRecord{Description: cell(row, 0), Number: cells[0], Length: cells[1], Breadth: cells[2], Height: cells[3]})
		}
		item := NewNLBH(doc.Itemnos[0], doc.Remark, records...)
		copyRemarks(&item.Common, doc.ItemRemarks)
		return item, nil
	case KindFields:
		records := make([]FieldsRecord, 0, len(doc.Records))
		for i, row := range doc.Records {
			width := len(row) - 1
			if width < 0 {
				width = 0
			}
			cells, err := parseCells(row, 1, width)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			records = append(records, FieldsRecord{Description: cell(row, 0), Values: cells})
		}
		item, err := NewFields(doc.Itemnos, doc.Remark, records...)
		if err != nil {
			return nil, err
		}
		copyRemarks(&item.Common, doc.ItemRemarks)
		return item, nil
	case KindAbstract:
		item := newAbstractFromRecords(doc.Itemnos, doc.Remark, doc.Records)
		copyRemarks(&item.Common, doc.ItemRemarks)
		return item, nil
	case KindCustom:
		item := &Custom{
			Common:       newCommon(doc.Itemnos, doc.Remark),
			TemplateName: doc.Template,
			Records:      doc.Records,
			UserData:     doc.UserData,
		}
		copyRemarks(&item.Common, doc.ItemRemarks)
		t, err := registry.Lookup(doc.Template)
		if err != nil {
			return item, err
		}
		if t.Arity() != len(doc.Itemnos) {
			return item, fmt.Errorf("%w: template %s takes %d itemnos, got %d", ErrArity, t.Name(), t.Arity(), len(doc.Itemnos))
		}
		item.Bind(t)
		return item, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, doc.Kind)
	}
}

func parseCells(row []string, offset, width int) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, width)
	for i := 0; i < width; i++ {
		v, err := money.Parse(cell(row, offset+i))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", offset+i, err)
		}
		out[i] = v
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func copyRemarks(c *Common, remarks []string) {
	for i := 0; i < len(remarks) && i < len(c.ItemRemarks); i++ {
		c.ItemRemarks[i] = remarks[i]
	}
}
