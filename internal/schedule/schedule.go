package schedule

import (
	"fmt"
	"strings"
)

// Schedule is an ordered collection of items unique by itemno.
type Schedule struct {
	items []Item
	index map[string]int
}

// New builds a schedule from items in order.
func New(items ...Item) (*Schedule, error) {
	s := &Schedule{index: make(map[string]int, len(items))}
	for _, item := range items {
		if err := s.Append(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds an item at the end of the schedule. The item is stored as
// given; a zero ExcessRatePercent means no deviation allowance.
func (s *Schedule) Append(item Item) error {
	item.Itemno = strings.TrimSpace(item.Itemno)
	if item.Itemno == "" {
		return ErrEmptyItemno
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[item.Itemno]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, item.Itemno)
	}
	s.index[item.Itemno] = len(s.items)
	s.items = append(s.items, item)
	return nil
}

// Len returns the number of rows, headings included.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// At returns the row at position i.
func (s *Schedule) At(i int) (Item, error) {
	if s == nil || i < 0 || i >= len(s.items) {
		return Item{}, fmt.Errorf("%w: index %d", ErrItemNotFound, i)
	}
	return s.items[i], nil
}

// Get looks an item up by itemno.
func (s *Schedule) Get(itemno string) (Item, bool) {
	if s == nil {
		return Item{}, false
	}
	i, ok := s.index[itemno]
	if !ok {
		return Item{}, false
	}
	return s.items[i], true
}

// Has reports whether itemno is a rated item of the schedule.
func (s *Schedule) Has(itemno string) bool {
	item, ok := s.Get(itemno)
	return ok && !item.IsHeading()
}

// Items returns a copy of every row in order.
func (s *Schedule) Items() []Item {
	if s == nil {
		return nil
	}
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Itemnos lists rated itemnos in schedule order, skipping headings.
func (s *Schedule) Itemnos() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.items))
	for _, item := range s.items {
		if item.IsHeading() {
			continue
		}
		out = append(out, item.Itemno)
	}
	return out
}

// ExtendedDescription joins the descriptions of every heading whose itemno
// is a dotted prefix of itemno, outermost first, with the item's own.
func (s *Schedule) ExtendedDescription(itemno string) string {
	item, ok := s.Get(itemno)
	if !ok {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, row := range s.items {
		if !row.IsHeading() || row.Itemno == itemno {
			continue
		}
		if isParent(row.Itemno, itemno) {
			if desc := strings.TrimSpace(row.Description); desc != "" {
				parts = append(parts, desc)
			}
		}
	}
	parts = append(parts, strings.TrimSpace(item.Description))
	return strings.Join(parts, ":\n")
}

// ExtendedDescriptions returns ExtendedDescription for every rated item.
func (s *Schedule) ExtendedDescriptions() map[string]string {
	out := make(map[string]string)
	for _, itemno := range s.Itemnos() {
		out[itemno] = s.ExtendedDescription(itemno)
	}
	return out
}

func isParent(parent, child string) bool {
	parent = strings.TrimSuffix(parent, ".")
	if parent == "" || len(child) <= len(parent) {
		return false
	}
	return strings.HasPrefix(child, parent) && child[len(parent)] == '.'
}
