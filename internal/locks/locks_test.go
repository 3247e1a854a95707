package locks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	s := New()
	s.Set([]int{0, 1, 2}, true)
	s.Set([]int{3, 0, 0}, false)

	v, known := s.Get([]int{0, 1, 2})
	assert.True(t, v)
	assert.True(t, known)

	v, known = s.Get([]int{3, 0, 0})
	assert.False(t, v)
	assert.True(t, known)

	_, known = s.Get([]int{0, 1})
	assert.False(t, known)
	_, known = s.Get([]int{9, 9, 9, 9})
	assert.False(t, known)
}

func TestRaggedPaths(t *testing.T) {
	s := New()
	s.Set([]int{0, 5, 1}, true)
	s.Set([]int{2, 0}, true)
	s.Set([]int{1}, true)
	assert.Equal(t, [][]int{{0, 5, 1}, {1}, {2, 0}}, s.Paths())
}

func TestUnionAndDifference(t *testing.T) {
	global := New()
	global.Set([]int{0, 0, 0}, true)
	global.Set([]int{0, 0, 1}, true)

	other := New()
	other.Set([]int{1, 0, 0}, true)
	global.Union(other)
	require.Equal(t, 3, global.Len())

	selected := New()
	selected.Set([]int{0, 0, 1}, true)
	selected.Set([]int{5, 5, 5}, true)
	available := global.Clone().Difference(selected)

	assert.Equal(t, [][]int{{0, 0, 0}, {1, 0, 0}}, available.Paths())
	assert.True(t, global.Locked([]int{0, 0, 1}), "clone must not alias")
	_, known := available.Get([]int{5, 5, 5})
	assert.False(t, known, "difference must not create unrelated paths")
}

func TestZeroValueUsable(t *testing.T) {
	var s State
	assert.False(t, s.Locked([]int{1}))
	s.Set([]int{1}, true)
	assert.True(t, s.Locked([]int{1}))
}
