package measurement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// pairTemplate bills column 1 to the first slot and column 2 to the second.
type pairTemplate struct {
	failTotal bool
	panicRow  string
}

func (p pairTemplate) Name() string              { return "pair" }
func (p pairTemplate) Arity() int                { return 2 }
func (p pairTemplate) Captions() []string        { return []string{"Description", "A", "B"} }
func (p pairTemplate) ColumnTypes() []ColumnType { return []ColumnType{ColumnText, ColumnFloat, ColumnFloat} }
func (p pairTemplate) Render(_ int, v string) string {
	return v
}

func (p pairTemplate) RecordTotal(rec []string, _ map[string]string) ([]decimal.Decimal, error) {
	if rec[0] == p.panicRow {
		panic("boom")
	}
	return []decimal.Decimal{d(rec[1]), d(rec[2])}, nil
}

func (p pairTemplate) Total(recs [][]string, u map[string]string) ([]decimal.Decimal, error) {
	if p.failTotal {
		return nil, errors.New("total unavailable")
	}
	out := []decimal.Decimal{decimal.Zero, decimal.Zero}
	for _, r := range recs {
		row, err := p.RecordTotal(r, u)
		if err != nil {
			return nil, err
		}
		out[0] = out[0].Add(row[0])
		out[1] = out[1].Add(row[1])
	}
	return out, nil
}

func (p pairTemplate) ExportAbstract(recs [][]string, u map[string]string) (string, []decimal.Decimal, error) {
	totals, err := p.Total(recs, u)
	return "pair rows", totals, err
}

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	fields, err := NewFiveField([5]string{"2.1", "2.2", "", "2.4", "2.5"}, "fittings",
		FieldsRecord{Description: "Block A", Values: []decimal.Decimal{d("1"), d("2"), d("3"), d("4"), d("5")}},
		FieldsRecord{Description: "Block B", Values: []decimal.Decimal{d("1"), d("1")}},
	)
	require.NoError(t, err)
	return &Tree{CMBs: []CMB{
		{Name: "CMB 1", Measurements: []Measurement{
			{Caption: "Week 1", Items: []Item{
				NewHeading("Earth work"),
				NewNLBH("1A", "trench",
					NLBHRecord{Description: "T1", Number: d("2"), Length: d("10"), Breadth: d("0.5")},
					NLBHRecord{Description: "T2", Length: d("5")},
				),
			}},
		}},
		{Name: "CMB 2", Measurements: []Measurement{
			{Caption: "Week 2", Items: []Item{fields}},
		}},
	}}
}

func TestNLBHProductOfNonZeroDimensions(t *testing.T) {
	rec := NLBHRecord{Number: d("2"), Length: d("10"), Breadth: d("0.5")}
	assert.Equal(t, "10", rec.Total().String())
	assert.True(t, NLBHRecord{}.Total().IsZero())
	item := NewNLBH("1A", "", rec, NLBHRecord{Height: d("3")})
	totals, err := item.Totals()
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "13", totals[0].String())
}

func TestFieldsTotalsPerColumn(t *testing.T) {
	tree := sampleTree(t)
	item, err := tree.Item(Path{CMB: 1})
	require.NoError(t, err)
	totals, err := item.Totals()
	require.NoError(t, err)
	require.Len(t, totals, len(item.Itemnos()))
	got := make([]string, len(totals))
	for i, v := range totals {
		got[i] = v.String()
	}
	assert.Equal(t, []string{"2", "3", "3", "4", "5"}, got)
}

func TestFieldsRejectsWideRecords(t *testing.T) {
	wide := FieldsRecord{Values: []decimal.Decimal{d("1"), d("2"), d("3"), d("4"), d("5"), d("6")}}
	_, err := NewFields([]string{"1", "2", "3", "4", "5"}, "", wide)
	require.ErrorIs(t, err, ErrArity)
	_, err = NewFields([]string{"1", "2", "3", "4", "5", "6", "7", "8"}, "", wide)
	require.NoError(t, err)
}

func TestDecodeFieldsChecksLayoutWidth(t *testing.T) {
	for _, n := range []int{0, 1, 4, 6, 9} {
		doc := ItemDoc{Kind: KindFields, Itemnos: make([]string, n), Records: [][]string{{"row", "1"}}}
		item, err := DecodeItem(doc, nil)
		require.ErrorIs(t, err, ErrArity, "width %d", n)
		assert.Nil(t, item)
	}
	doc := ItemDoc{Kind: KindFields, Itemnos: []string{"2.1", "", "", "", "", "", "", "2.8"}, Records: [][]string{{"row", "1", "0", "0", "0", "0", "0", "0", "4"}}}
	item, err := DecodeItem(doc, nil)
	require.NoError(t, err)
	totals, err := item.Totals()
	require.NoError(t, err)
	require.Len(t, totals, EightFieldArity)
	assert.Equal(t, "4", totals[7].String())
}

func TestCustomArityChecked(t *testing.T) {
	_, err := NewCustom(pairTemplate{}, []string{"1"}, "", nil, nil)
	require.ErrorIs(t, err, ErrArity)
}

func TestCustomFallsBackToRecordTotals(t *testing.T) {
	item, err := NewCustom(pairTemplate{failTotal: true, panicRow: "bad"}, []string{"1", "2"}, "",
		[][]string{{"good", "1.5", "2"}, {"bad", "9", "9"}, {"good", "1", "1"}}, nil)
	require.NoError(t, err)
	totals, err := item.Totals()
	require.ErrorIs(t, err, ErrTemplateFailed)
	assert.Equal(t, "2.5", totals[0].String())
	assert.Equal(t, "3", totals[1].String())
}

func TestUnboundCustomTotalsZero(t *testing.T) {
	item, err := DecodeItem(ItemDoc{Kind: KindCustom, Template: "missing", Itemnos: []string{"1"}, Records: [][]string{{"x"}}}, nil)
	require.ErrorIs(t, err, ErrTemplateNotFound)
	require.NotNil(t, item)
	totals, err := item.Totals()
	require.ErrorIs(t, err, ErrTemplateNotFound)
	assert.True(t, totals[0].IsZero())
}

func TestAbstractCarriesTotalsForward(t *testing.T) {
	tree := sampleTree(t)
	abs, err := NewAbstract(tree, nil, []Path{{CMB: 0, Measurement: 0, Item: 1}, {CMB: 1}}, "abstract")
	require.NoError(t, err)
	assert.Equal(t, KindAbstract, abs.Kind())
	assert.Equal(t, []string{"1A", "2.1", "2.2", "2.4", "2.5"}, abs.Itemnos())
	assert.Equal(t, []Path{{CMB: 0, Measurement: 0, Item: 1}, {CMB: 1}}, abs.SourcePaths())
	totals, err := abs.Totals()
	require.NoError(t, err)
	assert.Equal(t, "15", totals[0].String())
	assert.Equal(t, "2", totals[1].String())
	assert.Equal(t, "5", totals[4].String())
}

func TestAbstractSkipsHeadingsAndMissingPaths(t *testing.T) {
	tree := sampleTree(t)
	abs, err := NewAbstract(tree, []string{"1A"}, []Path{{}, {CMB: 7}, {Item: 1}}, "")
	require.ErrorIs(t, err, ErrPathNotFound)
	require.NotNil(t, abs)
	assert.Len(t, abs.SourcePaths(), 1)
}

func TestTreeWalkAndAddItem(t *testing.T) {
	tree := sampleTree(t)
	var paths []Path
	tree.Walk(func(p Path, _ Item) { paths = append(paths, p) })
	assert.Len(t, paths, 3)

	p, err := tree.AddItem(0, 0, NewNLBH("1A", "", NLBHRecord{Length: d("1")}))
	require.NoError(t, err)
	assert.Equal(t, Path{CMB: 0, Measurement: 0, Item: 2}, p)
	_, err = tree.AddItem(3, 0, NewHeading(""))
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestPathRoundTrip(t *testing.T) {
	p, err := ParsePath("1:2:3")
	require.NoError(t, err)
	assert.Equal(t, Path{CMB: 1, Measurement: 2, Item: 3}, p)
	assert.Equal(t, "1:2:3", p.String())
	_, err = ParsePath("1:x:3")
	require.ErrorIs(t, err, ErrInvalidPath)
	assert.True(t, Path{CMB: 0, Item: 5}.Less(Path{CMB: 1}))
}

func TestTreeCodecRoundTrip(t *testing.T) {
	tree := sampleTree(t)
	abs, err := NewAbstract(tree, nil, []Path{{CMB: 0, Measurement: 0, Item: 1}}, "carried")
	require.NoError(t, err)
	_, err = tree.AddItem(1, 0, abs)
	require.NoError(t, err)

	reg, err := NewRegistry(pairTemplate{})
	require.NoError(t, err)
	custom, err := NewCustom(pairTemplate{}, []string{"3", "4"}, "", [][]string{{"r", "1", "2"}}, nil)
	require.NoError(t, err)
	_, err = tree.AddItem(1, 0, custom)
	require.NoError(t, err)

	decoded, err := DecodeTree(EncodeTree(tree), reg)
	require.NoError(t, err)
	tree.Walk(func(p Path, want Item) {
		got, err := decoded.Item(p)
		require.NoError(t, err)
		require.Equal(t, want.Kind(), got.Kind())
		wantTotals, _ := want.Totals()
		gotTotals, _ := got.Totals()
		require.Len(t, gotTotals, len(wantTotals))
		for i := range wantTotals {
			require.True(t, wantTotals[i].Equal(gotTotals[i]), "%s slot %d", p, i)
		}
	})
	assert.Len(t, decoded.Abstracts(), 1)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := DecodeItem(ItemDoc{Kind: "weird"}, nil)
	require.ErrorIs(t, err, ErrUnknownKind)
}
