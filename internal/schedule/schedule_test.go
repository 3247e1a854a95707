package schedule

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleSchedule(t *testing.T) *Schedule {
	t.Helper()
	s, err := New(
		Item{Itemno: "1", Description: "Earth work"},
		Item{Itemno: "1.1", Description: "Excavation in ordinary soil", Unit: "cum", Rate: d("100"), Qty: d("50"), ExcessRatePercent: d("20")},
		Item{Itemno: "1.2", Description: "Refilling", Unit: "cum", Rate: d("40"), Qty: d("30")},
		Item{Itemno: "2", Description: "Fittings", Unit: "nos", Rate: d("250"), Qty: d("10")},
	)
	require.NoError(t, err)
	return s
}

func TestItemnosSkipsHeadings(t *testing.T) {
	s := sampleSchedule(t)
	assert.Equal(t, []string{"1.1", "1.2", "2"}, s.Itemnos())
	assert.Equal(t, 4, s.Len())
	assert.False(t, s.Has("1"))
	assert.True(t, s.Has("1.2"))
}

func TestAppendKeepsExcessPercent(t *testing.T) {
	s := sampleSchedule(t)
	item, ok := s.Get("1.2")
	require.True(t, ok)
	assert.True(t, item.ExcessRatePercent.IsZero(), "an explicit 0% allowance is kept")
	item, _ = s.Get("1.1")
	assert.True(t, item.ExcessRatePercent.Equal(d("20")))
	assert.True(t, NewItem("9", "x", "m", d("1"), d("1")).ExcessRatePercent.Equal(DefaultExcessRatePercent))
}

func TestDecodeDefaultsOnlyMissingExcessPercent(t *testing.T) {
	var fromYAML []Item
	err := yaml.Unmarshal([]byte(`
- {itemno: "1", description: Earth work}
- {itemno: "1.1", unit: cum, rate: 100, qty: 50}
- {itemno: "1.2", unit: cum, rate: 40, qty: 30, excess_rate_percent: 0}
- {itemno: "1.3", unit: cum, rate: 40, qty: 30, excess_rate_percent: 12.5}
`), &fromYAML)
	require.NoError(t, err)
	require.Len(t, fromYAML, 4)
	assert.True(t, fromYAML[0].ExcessRatePercent.IsZero(), "headings carry no allowance")
	assert.True(t, fromYAML[1].ExcessRatePercent.Equal(d("30")))
	assert.True(t, fromYAML[2].ExcessRatePercent.IsZero())
	assert.True(t, fromYAML[3].ExcessRatePercent.Equal(d("12.5")))
	assert.Equal(t, "cum", fromYAML[1].Unit)

	var fromJSON []Item
	err = json.Unmarshal([]byte(`[
		{"itemno": "2", "unit": "nos", "rate": "250", "qty": "10"},
		{"itemno": "3", "unit": "nos", "rate": "250", "qty": "10", "excess_rate_percent": 0}
	]`), &fromJSON)
	require.NoError(t, err)
	assert.True(t, fromJSON[0].ExcessRatePercent.Equal(d("30")))
	assert.True(t, fromJSON[1].ExcessRatePercent.IsZero())

	raw, err := json.Marshal(fromJSON[1])
	require.NoError(t, err)
	var back Item
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.ExcessRatePercent.IsZero(), "stored 0% survives a round trip")
}

func TestDuplicateItemnoRejected(t *testing.T) {
	s := sampleSchedule(t)
	err := s.Append(Item{Itemno: "2", Unit: "nos"})
	require.ErrorIs(t, err, ErrDuplicateItem)
	require.ErrorIs(t, s.Append(Item{Itemno: "  "}), ErrEmptyItemno)
}

func TestLookupByIndex(t *testing.T) {
	s := sampleSchedule(t)
	item, err := s.At(1)
	require.NoError(t, err)
	assert.Equal(t, "1.1", item.Itemno)
	_, err = s.At(9)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestExtendedDescription(t *testing.T) {
	s := sampleSchedule(t)
	assert.Equal(t, "Earth work:\nExcavation in ordinary soil", s.ExtendedDescription("1.1"))
	assert.Equal(t, "Fittings", s.ExtendedDescription("2"))
	assert.Equal(t, "", s.ExtendedDescription("9"))
	assert.Len(t, s.ExtendedDescriptions(), 3)
}
