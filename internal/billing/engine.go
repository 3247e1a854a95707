package billing

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/money"
	"github.com/cmbworks/cmbworks/internal/schedule"
)

// Inputs are the collaborators a bill is computed against.
type Inputs struct {
	Schedule *schedule.Schedule
	Tree     *measurement.Tree
	// Percentage is applied to the normal amount of percentage eligible items.
	Percentage decimal.Decimal
}

// Observer receives a callback after every bill update.
type Observer interface {
	ObserveUpdate(billType string, elapsed time.Duration, warnings int)
}

// Engine computes bills. It holds no bill state.
type Engine struct {
	logger   *slog.Logger
	observer Observer
}

// NewEngine wires the optional logger and observer.
func NewEngine(logger *slog.Logger, observer Observer) *Engine {
	return &Engine{logger: logger, observer: observer}
}

// Update derives the state of bill index from data. prev must be the
// computed previous bill when data names one. Calling Update twice with the
// same inputs yields identical results.
func (e *Engine) Update(in Inputs, index int, data BillData, prev *Bill) *Bill {
	start := time.Now()
	bill := &Bill{
		Index: index,
		Data:  data.Clone(),
		Items: make(map[string]*ItemResult),
	}
	if data.Type == BillCustom {
		e.updateCustom(in, bill)
	} else {
		e.updateMeasured(in, bill, prev)
	}
	e.updateTotals(in, bill, prev)
	if e != nil && e.observer != nil {
		e.observer.ObserveUpdate(string(bill.Data.Type), time.Since(start), len(bill.Warnings))
	}
	return bill
}

func (e *Engine) updateMeasured(in Inputs, bill *Bill, prev *Bill) {
	itemnos := in.Schedule.Itemnos()
	bill.Itemnos = itemnos
	for _, itemno := range itemnos {
		bill.Items[itemno] = &ItemResult{Itemno: itemno}
	}

	if prev != nil {
		for _, itemno := range itemnos {
			qty := prev.Qty(itemno)
			if qty.IsZero() {
				continue
			}
			r := bill.Items[itemno]
			r.Contributions = append(r.Contributions, Contribution{Source: SourceCarried, Qty: qty})
		}
	}

	cmbRef := make(map[int]struct{})
	for _, path := range bill.Data.MItems {
		item, err := in.Tree.Item(path)
		if err != nil {
			e.warn(bill, Warning{Path: path.String(), Message: err.Error()})
			continue
		}
		totals, err := item.Totals()
		if err != nil {
			e.warn(bill, Warning{Path: path.String(), Message: err.Error()})
		}
		for slot, itemno := range item.Itemnos() {
			if itemno == "" {
				continue
			}
			r, ok := bill.Items[itemno]
			if !ok {
				e.warn(bill, Warning{Itemno: itemno, Path: path.String(), Message: "itemno not in schedule"})
				continue
			}
			qty := decimal.Zero
			if slot < len(totals) {
				qty = totals[slot]
			}
			r.Contributions = append(r.Contributions, Contribution{Source: path.CMB, Path: path, Qty: qty})
			cmbRef[path.CMB] = struct{}{}
		}
	}
	bill.CMBRef = sortedInts(cmbRef)

	for _, itemno := range itemnos {
		item, _ := in.Schedule.Get(itemno)
		applyRates(item, bill.Data.Config(itemno), bill.Items[itemno])
	}
}

// applyRates splits the item quantity at the deviation limit and prices both
// parts.
func applyRates(item schedule.Item, cfg ItemConfig, r *ItemResult) {
	total := decimal.Zero
	for _, c := range r.Contributions {
		total = total.Add(c.Qty)
	}
	r.Qty = total
	r.DeviationLimit = money.Grow(item.Qty, item.ExcessRatePercent)
	if !item.Qty.IsZero() {
		r.DeviationPercent = money.Currency(total.Sub(item.Qty).Div(item.Qty).Mul(decimal.NewFromInt(100)))
	} else {
		r.DeviationPercent = decimal.Zero
	}

	if total.GreaterThan(r.DeviationLimit) {
		r.NormalQty = money.RoundQuantity(r.DeviationLimit, item.Unit, money.LimitPlaces)
		r.ExcessQty = total.Sub(r.NormalQty)
	} else {
		r.NormalQty = total
		r.ExcessQty = decimal.Zero
	}

	r.NormalRate = money.Currency(money.Percent(item.Rate, cfg.PartPercentage))
	r.ExcessRate = money.Currency(money.Percent(cfg.ExcessRate, cfg.ExcessPartPercentage))
	r.NormalAmount = money.Currency(r.NormalQty.Mul(r.NormalRate))
	r.ExcessAmount = money.Currency(r.ExcessQty.Mul(r.ExcessRate))
	if item.PercentageEligible {
		r.PlusMinusAmount = r.NormalAmount
	} else {
		r.PlusMinusAmount = decimal.Zero
	}
}

func (e *Engine) updateCustom(in Inputs, bill *Bill) {
	seen := make(map[string]struct{})
	for _, m := range []map[string]decimal.Decimal{bill.Data.CustomNormalAmount, bill.Data.CustomExcessAmount} {
		for itemno := range m {
			seen[itemno] = struct{}{}
		}
	}
	for itemno := range bill.Data.CustomQty {
		seen[itemno] = struct{}{}
	}

	ordered := make([]string, 0, len(seen))
	for _, itemno := range in.Schedule.Itemnos() {
		if _, ok := seen[itemno]; ok {
			ordered = append(ordered, itemno)
			delete(seen, itemno)
		}
	}
	extra := make([]string, 0, len(seen))
	for itemno := range seen {
		extra = append(extra, itemno)
	}
	sort.Strings(extra)
	ordered = append(ordered, extra...)
	bill.Itemnos = ordered

	for _, itemno := range ordered {
		r := &ItemResult{
			Itemno:          itemno,
			NormalAmount:    money.Currency(bill.Data.CustomNormalAmount[itemno]),
			ExcessAmount:    money.Currency(bill.Data.CustomExcessAmount[itemno]),
			PlusMinusAmount: decimal.Zero,
		}
		for _, qty := range bill.Data.CustomQty[itemno] {
			r.Contributions = append(r.Contributions, Contribution{Source: SourceManual, Qty: qty})
			r.Qty = r.Qty.Add(qty)
		}
		bill.Items[itemno] = r
	}
}

func (e *Engine) updateTotals(in Inputs, bill *Bill, prev *Bill) {
	amount := decimal.Zero
	plusMinus := decimal.Zero
	for _, itemno := range bill.Itemnos {
		r := bill.Items[itemno]
		amount = amount.Add(r.NormalAmount).Add(r.ExcessAmount)
		plusMinus = plusMinus.Add(r.PlusMinusAmount)
	}
	bill.TotalAmount = money.Currency(amount)
	bill.TotalAmountPlusMinus = money.Currency(plusMinus)
	bill.PlusMinusAmount = money.Currency(money.Percent(bill.TotalAmountPlusMinus, in.Percentage))
	bill.NetTotalAmount = money.Currency(bill.TotalAmount.Add(bill.PlusMinusAmount))

	if prev != nil {
		bill.SincePrevAmount = money.Currency(bill.NetTotalAmount).Sub(money.CurrencyR(prev.NetTotalAmount))
	} else {
		bill.SincePrevAmount = money.Currency(bill.NetTotalAmount)
	}

	adjustments := decimal.Zero
	for _, adj := range bill.Data.Adjustments {
		adjustments = adjustments.Add(adj.Amount)
	}
	bill.NetPayableAmount = money.CurrencyR(bill.SincePrevAmount.Add(adjustments))
}

func (e *Engine) warn(bill *Bill, w Warning) {
	bill.Warnings = append(bill.Warnings, w)
	e.log().Warn("bill data inconsistency",
		slog.Int("bill", bill.Index),
		slog.String("itemno", w.Itemno),
		slog.String("path", w.Path),
		slog.String("reason", w.Message))
}

func (e *Engine) log() *slog.Logger {
	if e != nil && e.logger != nil {
		return e.logger.With(slog.String("component", "bill_engine"))
	}
	return slog.Default().With(slog.String("component", "bill_engine"))
}

// String summarises the bill for logs.
func (b *Bill) String() string {
	return fmt.Sprintf("bill %d (%s) net payable %s", b.Index, b.Data.Type, money.Format(b.NetPayableAmount, 0))
}
