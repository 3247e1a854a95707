// Package billing derives payment bills from a schedule of rates, the
// measurement tree and the chain of previous bills.
package billing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/schedule"
)

// BillType selects the computation path of a bill.
type BillType string

const (
	// BillNormal derives quantities from claimed measurements.
	BillNormal BillType = "NORMAL"
	// BillFinal derives like BillNormal and lists every schedule item.
	BillFinal BillType = "FINAL"
	// BillCustom takes quantities and amounts as entered.
	BillCustom BillType = "CUSTOM"
)

// Valid reports whether t is a known bill type.
func (t BillType) Valid() bool {
	switch t {
	case BillNormal, BillFinal, BillCustom:
		return true
	}
	return false
}

const (
	// SourceCarried marks a contribution brought from the previous bill.
	SourceCarried = -1
	// SourceManual marks a quantity entered on a custom bill.
	SourceManual = -2
)

var (
	// ErrCircularBill occurs when a bill reaches itself through prev bills.
	ErrCircularBill = errors.New("billing: circular bill reference")
	// ErrBillNotFound occurs when a bill index is out of range.
	ErrBillNotFound = errors.New("billing: bill not found")
	// ErrInvalidPrevBill occurs when a prev bill index does not resolve.
	ErrInvalidPrevBill = errors.New("billing: invalid previous bill")
	// ErrPathLocked occurs when a measurement item is already claimed.
	ErrPathLocked = errors.New("billing: measurement item already claimed")
)

// CycleError names the bills forming a prev bill cycle.
type CycleError struct {
	Chain []int
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, idx := range e.Chain {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("%s: %s", ErrCircularBill, strings.Join(parts, " -> "))
}

// Is matches ErrCircularBill.
func (e *CycleError) Is(target error) bool {
	return target == ErrCircularBill
}

// ItemConfig holds the per itemno rate settings of a bill.
type ItemConfig struct {
	PartPercentage       decimal.Decimal `json:"part_percentage" yaml:"part_percentage"`
	ExcessPartPercentage decimal.Decimal `json:"excess_part_percentage" yaml:"excess_part_percentage"`
	ExcessRate           decimal.Decimal `json:"excess_rate" yaml:"excess_rate"`
}

// DefaultItemConfig pays the full rate and has no excess rate.
func DefaultItemConfig() ItemConfig {
	return ItemConfig{
		PartPercentage:       decimal.NewFromInt(100),
		ExcessPartPercentage: decimal.NewFromInt(100),
		ExcessRate:           decimal.Zero,
	}
}

// Adjustment is a manual correction to the net payable amount.
type Adjustment struct {
	Description string          `json:"description" yaml:"description"`
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
}

// BillData is the persisted state of a bill.
type BillData struct {
	PrevBill     *int                  `json:"prev_bill,omitempty" yaml:"prev_bill,omitempty"`
	CMBName      string                `json:"cmb_name" yaml:"cmb_name"`
	Title        string                `json:"title" yaml:"title"`
	BillDate     string                `json:"bill_date" yaml:"bill_date"`
	StartingPage int                   `json:"starting_page" yaml:"starting_page"`
	Type         BillType              `json:"bill_type" yaml:"bill_type"`
	MItems       []measurement.Path    `json:"mitems" yaml:"mitems"`
	ItemConfigs  map[string]ItemConfig `json:"item_configs,omitempty" yaml:"item_configs,omitempty"`
	Adjustments  []Adjustment          `json:"adjustments,omitempty" yaml:"adjustments,omitempty"`

	// Entered directly on custom bills.
	CustomQty          map[string][]decimal.Decimal `json:"item_qty,omitempty" yaml:"item_qty,omitempty"`
	CustomNormalAmount map[string]decimal.Decimal   `json:"item_normal_amount,omitempty" yaml:"item_normal_amount,omitempty"`
	CustomExcessAmount map[string]decimal.Decimal   `json:"item_excess_amount,omitempty" yaml:"item_excess_amount,omitempty"`
}

// NewBillData returns an empty normal bill.
func NewBillData(title string) BillData {
	return BillData{Title: title, Type: BillNormal, ItemConfigs: make(map[string]ItemConfig)}
}

// Config returns the stored settings for itemno or the defaults.
func (b BillData) Config(itemno string) ItemConfig {
	if cfg, ok := b.ItemConfigs[itemno]; ok {
		return cfg
	}
	return DefaultItemConfig()
}

// SetConfig stores settings for itemno.
func (b *BillData) SetConfig(itemno string, cfg ItemConfig) {
	if b.ItemConfigs == nil {
		b.ItemConfigs = make(map[string]ItemConfig)
	}
	b.ItemConfigs[itemno] = cfg
}

// Normalize gives every rated schedule item an explicit config and fills
// the bill type. It is applied when bills are loaded or the schedule grows.
func (b *BillData) Normalize(s *schedule.Schedule) {
	if !b.Type.Valid() {
		b.Type = BillNormal
	}
	for _, itemno := range s.Itemnos() {
		if _, ok := b.ItemConfigs[itemno]; !ok {
			b.SetConfig(itemno, DefaultItemConfig())
		}
	}
}

// Clone returns a copy sharing no maps or slices with b.
func (b BillData) Clone() BillData {
	out := b
	if b.PrevBill != nil {
		prev := *b.PrevBill
		out.PrevBill = &prev
	}
	out.MItems = append([]measurement.Path(nil), b.MItems...)
	out.Adjustments = append([]Adjustment(nil), b.Adjustments...)
	if b.ItemConfigs != nil {
		out.ItemConfigs = make(map[string]ItemConfig, len(b.ItemConfigs))
		for k, v := range b.ItemConfigs {
			out.ItemConfigs[k] = v
		}
	}
	if b.CustomQty != nil {
		out.CustomQty = make(map[string][]decimal.Decimal, len(b.CustomQty))
		for k, v := range b.CustomQty {
			out.CustomQty[k] = append([]decimal.Decimal(nil), v...)
		}
	}
	out.CustomNormalAmount = cloneAmounts(b.CustomNormalAmount)
	out.CustomExcessAmount = cloneAmounts(b.CustomExcessAmount)
	return out
}

func cloneAmounts(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Contribution is one quantity feeding an item total.
type Contribution struct {
	// Source is the CMB index, SourceCarried or SourceManual.
	Source int              `json:"source"`
	Path   measurement.Path `json:"path"`
	Qty    decimal.Decimal  `json:"qty"`
}

// Carried reports whether the quantity came from the previous bill.
func (c Contribution) Carried() bool {
	return c.Source == SourceCarried
}

// ItemResult is the derived state of one itemno.
type ItemResult struct {
	Itemno           string
	Contributions    []Contribution
	Qty              decimal.Decimal
	DeviationLimit   decimal.Decimal
	DeviationPercent decimal.Decimal
	NormalQty        decimal.Decimal
	ExcessQty        decimal.Decimal
	NormalRate       decimal.Decimal
	ExcessRate       decimal.Decimal
	NormalAmount     decimal.Decimal
	ExcessAmount     decimal.Decimal
	PlusMinusAmount  decimal.Decimal
}

// Amount is the normal plus excess amount.
func (r *ItemResult) Amount() decimal.Decimal {
	return r.NormalAmount.Add(r.ExcessAmount)
}

// Paths lists the measurement paths contributing to the item.
func (r *ItemResult) Paths() []measurement.Path {
	out := make([]measurement.Path, 0, len(r.Contributions))
	for _, c := range r.Contributions {
		if c.Source >= 0 {
			out = append(out, c.Path)
		}
	}
	return out
}

// Warning records a data inconsistency skipped during computation.
type Warning struct {
	Itemno  string `json:"itemno,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	var b strings.Builder
	if w.Itemno != "" {
		b.WriteString("item " + w.Itemno + ": ")
	}
	if w.Path != "" {
		b.WriteString("at " + w.Path + ": ")
	}
	b.WriteString(w.Message)
	return b.String()
}

// Bill is the derived state of a bill. It is rebuilt on every update and
// never persisted.
type Bill struct {
	Index int
	Data  BillData
	// Itemnos lists computed items in schedule order.
	Itemnos []string
	Items   map[string]*ItemResult
	CMBRef  []int

	TotalAmount          decimal.Decimal
	TotalAmountPlusMinus decimal.Decimal
	PlusMinusAmount      decimal.Decimal
	NetTotalAmount       decimal.Decimal
	SincePrevAmount      decimal.Decimal
	NetPayableAmount     decimal.Decimal

	Warnings []Warning
}

// Item returns the result for itemno.
func (b *Bill) Item(itemno string) (*ItemResult, bool) {
	r, ok := b.Items[itemno]
	return r, ok
}

// Qty returns the cumulative quantity of itemno, zero when absent.
func (b *Bill) Qty(itemno string) decimal.Decimal {
	if r, ok := b.Items[itemno]; ok {
		return r.Qty
	}
	return decimal.Zero
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
