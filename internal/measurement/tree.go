package measurement

import "fmt"

// Measurement is a dated group of items recorded together.
type Measurement struct {
	Caption string
	Date    string
	Items   []Item
}

// CMB is a named measurement book.
type CMB struct {
	Name         string
	Measurements []Measurement
}

// Tree is the forest of measurement books a project owns. Items are addressed
// by Path and never shared between trees.
type Tree struct {
	CMBs []CMB
}

// Item resolves p.
func (t *Tree) Item(p Path) (Item, error) {
	if t == nil || p.CMB < 0 || p.CMB >= len(t.CMBs) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, p)
	}
	cmb := t.CMBs[p.CMB]
	if p.Measurement < 0 || p.Measurement >= len(cmb.Measurements) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, p)
	}
	items := cmb.Measurements[p.Measurement].Items
	if p.Item < 0 || p.Item >= len(items) || items[p.Item] == nil {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, p)
	}
	return items[p.Item], nil
}

// Walk visits every item in depth first order.
func (t *Tree) Walk(fn func(Path, Item)) {
	if t == nil {
		return
	}
	for c, cmb := range t.CMBs {
		for m, meas := range cmb.Measurements {
			for i, item := range meas.Items {
				if item == nil {
					continue
				}
				fn(Path{CMB: c, Measurement: m, Item: i}, item)
			}
		}
	}
}

// Abstracts returns every abstract item keyed by its own path.
func (t *Tree) Abstracts() map[Path]*Abstract {
	out := make(map[Path]*Abstract)
	t.Walk(func(p Path, item Item) {
		if abs, ok := item.(*Abstract); ok {
			out[p] = abs
		}
	})
	return out
}

// AddItem appends item to the given measurement and returns its path.
func (t *Tree) AddItem(cmb, meas int, item Item) (Path, error) {
	if t == nil || cmb < 0 || cmb >= len(t.CMBs) {
		return Path{}, fmt.Errorf("%w: cmb %d", ErrPathNotFound, cmb)
	}
	if meas < 0 || meas >= len(t.CMBs[cmb].Measurements) {
		return Path{}, fmt.Errorf("%w: measurement %d:%d", ErrPathNotFound, cmb, meas)
	}
	m := &t.CMBs[cmb].Measurements[meas]
	m.Items = append(m.Items, item)
	return Path{CMB: cmb, Measurement: meas, Item: len(m.Items) - 1}, nil
}
