// Package locks tracks which measurement items have been claimed by a bill or
// an abstract. State is a sparse tree of booleans keyed by hierarchical
// indices, so books need not share a shape.
package locks

import "sort"

// State is a sparse boolean tree. The zero value is empty and ready to use.
type State struct {
	value    *bool
	children map[int]*State
}

// New returns an empty state.
func New() *State {
	return &State{}
}

// Set records v at path. An empty path sets the root.
func (s *State) Set(path []int, v bool) {
	node := s
	for _, idx := range path {
		if node.children == nil {
			node.children = make(map[int]*State)
		}
		child, ok := node.children[idx]
		if !ok {
			child = &State{}
			node.children[idx] = child
		}
		node = child
	}
	val := v
	node.value = &val
}

// Get returns the value at path. known is false when nothing was recorded.
func (s *State) Get(path []int) (value, known bool) {
	node := s.node(path)
	if node == nil || node.value == nil {
		return false, false
	}
	return *node.value, true
}

// Locked reports whether path holds true.
func (s *State) Locked(path []int) bool {
	v, _ := s.Get(path)
	return v
}

// Union sets every true path of other.
func (s *State) Union(other *State) *State {
	for _, p := range other.Paths() {
		s.Set(p, true)
	}
	return s
}

// Difference clears every true path of other.
func (s *State) Difference(other *State) *State {
	for _, p := range other.Paths() {
		if node := s.node(p); node != nil && node.value != nil {
			s.Set(p, false)
		}
	}
	return s
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return New()
	}
	out := &State{}
	if s.value != nil {
		v := *s.value
		out.value = &v
	}
	if len(s.children) > 0 {
		out.children = make(map[int]*State, len(s.children))
		for k, child := range s.children {
			out.children[k] = child.Clone()
		}
	}
	return out
}

// Paths lists every path holding true, ordered depth first.
func (s *State) Paths() [][]int {
	var out [][]int
	if s == nil {
		return out
	}
	s.collect(nil, &out)
	return out
}

// Len counts paths holding true.
func (s *State) Len() int {
	return len(s.Paths())
}

func (s *State) collect(prefix []int, out *[][]int) {
	if s.value != nil && *s.value {
		p := make([]int, len(prefix))
		copy(p, prefix)
		*out = append(*out, p)
	}
	keys := make([]int, 0, len(s.children))
	for k := range s.children {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		s.children[k].collect(append(prefix, k), out)
	}
}

func (s *State) node(path []int) *State {
	node := s
	for _, idx := range path {
		if node == nil || node.children == nil {
			return nil
		}
		node = node.children[idx]
	}
	return node
}
