package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/schedule"
)

func sampleSnapshot(t *testing.T) billing.Snapshot {
	t.Helper()
	item := schedule.NewItem("1.1", "=Excavation", "cum", decimal.NewFromInt(100), decimal.NewFromInt(50))
	item.ExcessRatePercent = decimal.NewFromInt(20)
	idle := schedule.NewItem("2", "Pipes", "nos", decimal.NewFromInt(10), decimal.NewFromInt(4))
	sched, err := schedule.New(item, idle)
	require.NoError(t, err)
	tree := &measurement.Tree{CMBs: []measurement.CMB{{Measurements: []measurement.Measurement{{Items: []measurement.Item{
		measurement.NewNLBH("1.1", "", measurement.NLBHRecord{Length: decimal.NewFromInt(65)}),
	}}}}}}
	data := billing.NewBillData("Final bill")
	data.Type = billing.BillFinal
	data.MItems = []measurement.Path{{}}
	data.SetConfig("1.1", billing.ItemConfig{PartPercentage: decimal.NewFromInt(100), ExcessPartPercentage: decimal.NewFromInt(100), ExcessRate: decimal.NewFromInt(120)})
	data.Adjustments = []billing.Adjustment{{Description: "Security deposit", Amount: decimal.NewFromInt(-600)}}
	bill := billing.NewEngine(nil, nil).Update(billing.Inputs{Schedule: sched, Tree: tree}, 0, data, nil)
	return bill.Snapshot(sched)
}

func TestWriteBillCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBillCSV(&buf, sampleSnapshot(t)))

	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.Error(t, err, "title and total rows are narrower than the table")

	reader := csv.NewReader(bytes.NewReader(buf.Bytes()))
	reader.FieldsPerRecord = -1
	rows, err = reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Final bill", "FINAL", ""}, rows[0])
	assert.Equal(t, lineHeader, rows[1])
	assert.Equal(t, []string{"1.1", "=Excavation", "cum", "65.000", "60.000", "5.000", "100.00", "120.00", "6000.00", "600.00", "6600.00"}, rows[2])
	assert.Equal(t, "2", rows[3][0], "final bills list zero items")
	assert.Equal(t, []string{"", "Adjustment: Security deposit", "-600.00"}, rows[len(rows)-2])
	assert.Equal(t, []string{"", "Net payable", "6000"}, rows[len(rows)-1])
}

func TestWriteBillXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleSnapshot(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	title, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Final bill", title)

	desc, err := f.GetCellValue(sheetName, "B5")
	require.NoError(t, err)
	assert.Equal(t, "'=Excavation", desc)

	amount, err := f.GetCellValue(sheetName, "I5", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString(amount).Equal(decimal.NewFromInt(6000)), amount)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Equal(t, "text/csv", FormatCSV.ContentType())

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.ErrorIs(t, Write(&bytes.Buffer{}, Format("pdf"), billing.Snapshot{}), ErrUnknownFormat)
	assert.Equal(t, "bill-3.csv", FileName(billing.Snapshot{Index: 2}, FormatCSV))
}
