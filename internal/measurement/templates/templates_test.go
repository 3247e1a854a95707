package templates

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cmbworks/cmbworks/internal/measurement"
)

func TestDefaultRegistryNames(t *testing.T) {
	require.Equal(t, []string{"earthwork", "painting", "reinforcement"}, Default().Names())
}

func TestReinforcementWeight(t *testing.T) {
	tpl := Reinforcement()
	totals, err := tpl.Total([][]string{{"Main bars", "12", "10", "5.4"}}, nil)
	require.NoError(t, err)
	// 10 × 5.4 × 144 / 162 = 48
	require.True(t, totals[0].Equal(decimal.NewFromInt(48)), totals[0].String())
}

func TestEarthworkSplitsRefill(t *testing.T) {
	item, err := measurement.NewCustom(Earthwork(), []string{"1.1", "1.2"}, "trench",
		[][]string{{"Trench", "2", "10", "1", "1.5"}},
		map[string]string{"refill_percent": "60"})
	require.NoError(t, err)
	totals, err := item.Totals()
	require.NoError(t, err)
	require.Equal(t, "30", totals[0].String())
	require.Equal(t, "18", totals[1].String())
}

func TestPaintingDefaultsCoefficient(t *testing.T) {
	totals, err := Painting().Total([][]string{{"Wall", "", "4", "3", ""}, {"Grill", "1", "2", "1", "2.5"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "17", totals[0].String())
}

func TestBadCellFailsTemplateButItemCountsZero(t *testing.T) {
	item, err := measurement.NewCustom(Painting(), []string{"3"}, "", [][]string{{"ok", "1", "2", "2", ""}, {"bad", "x", "1", "1", ""}}, nil)
	require.NoError(t, err)
	totals, err := item.Totals()
	require.ErrorIs(t, err, measurement.ErrTemplateFailed)
	require.Equal(t, "4", totals[0].String())
}

func TestRenderFormatsNumericColumns(t *testing.T) {
	tpl := Painting()
	require.Equal(t, "Wall", tpl.Render(0, "Wall"))
	require.Equal(t, "2.500", tpl.Render(4, "2.5"))
}
