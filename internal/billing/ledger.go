package billing

import "fmt"

// Ledger computes a list of bills whose prev bill references form chains.
// Every call recomputes from BillData; nothing is patched incrementally.
type Ledger struct {
	engine *Engine
	inputs Inputs
	bills  []BillData
}

// NewLedger builds a ledger over bills.
func NewLedger(engine *Engine, inputs Inputs, bills []BillData) *Ledger {
	return &Ledger{engine: engine, inputs: inputs, bills: bills}
}

// Len returns the number of bills.
func (l *Ledger) Len() int {
	return len(l.bills)
}

// Chain returns index followed by its ancestors, nearest first. It fails on
// dangling prev bill indices and on cycles.
func (l *Ledger) Chain(index int) ([]int, error) {
	return chain(l.bills, index)
}

// Order returns every bill index such that each bill follows its prev bill.
func (l *Ledger) Order() ([]int, error) {
	done := make([]bool, len(l.bills))
	order := make([]int, 0, len(l.bills))
	for i := range l.bills {
		if done[i] {
			continue
		}
		ch, err := chain(l.bills, i)
		if err != nil {
			return nil, err
		}
		for j := len(ch) - 1; j >= 0; j-- {
			if !done[ch[j]] {
				done[ch[j]] = true
				order = append(order, ch[j])
			}
		}
	}
	return order, nil
}

// ComputeAll computes every bill in dependency order.
func (l *Ledger) ComputeAll() ([]*Bill, error) {
	order, err := l.Order()
	if err != nil {
		return nil, err
	}
	out := make([]*Bill, len(l.bills))
	for _, idx := range order {
		var prev *Bill
		if p := l.bills[idx].PrevBill; p != nil {
			prev = out[*p]
		}
		out[idx] = l.engine.Update(l.inputs, idx, l.bills[idx], prev)
	}
	return out, nil
}

// Compute computes bill index after its ancestors.
func (l *Ledger) Compute(index int) (*Bill, error) {
	ch, err := l.Chain(index)
	if err != nil {
		return nil, err
	}
	var prev *Bill
	for i := len(ch) - 1; i >= 0; i-- {
		idx := ch[i]
		prev = l.engine.Update(l.inputs, idx, l.bills[idx], prev)
	}
	return prev, nil
}

// Dependents lists bills that reach index through their prev bills.
func (l *Ledger) Dependents(index int) []int {
	var out []int
	for i := range l.bills {
		if i == index {
			continue
		}
		ch, err := chain(l.bills, i)
		if err != nil {
			continue
		}
		for _, idx := range ch[1:] {
			if idx == index {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// CheckPrevBill reports whether bills[index] may name prev as its previous
// bill without creating a cycle.
func CheckPrevBill(bills []BillData, index int, prev *int) error {
	if index < 0 || index >= len(bills) {
		return fmt.Errorf("%w: %d", ErrBillNotFound, index)
	}
	trial := make([]BillData, len(bills))
	copy(trial, bills)
	trial[index].PrevBill = prev
	_, err := chain(trial, index)
	return err
}

// CheckChains fails when any prev bill reference dangles or closes a cycle.
func CheckChains(bills []BillData) error {
	for i := range bills {
		if _, err := chain(bills, i); err != nil {
			return err
		}
	}
	return nil
}

func chain(bills []BillData, index int) ([]int, error) {
	if index < 0 || index >= len(bills) {
		return nil, fmt.Errorf("%w: %d", ErrBillNotFound, index)
	}
	seen := make(map[int]int, 4)
	out := []int{}
	cur := index
	for {
		if pos, ok := seen[cur]; ok {
			cycle := append([]int(nil), out[pos:]...)
			return nil, &CycleError{Chain: append(cycle, cur)}
		}
		seen[cur] = len(out)
		out = append(out, cur)
		p := bills[cur].PrevBill
		if p == nil {
			return out, nil
		}
		if *p < 0 || *p >= len(bills) {
			return nil, fmt.Errorf("%w: bill %d names %d", ErrInvalidPrevBill, cur, *p)
		}
		cur = *p
	}
}
