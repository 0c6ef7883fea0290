package ring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_EvictsOldestFirst(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, 3, r.Len())

	newest, ok := r.Newest()
	require.True(t, ok)
	assert.Equal(t, 5, newest)
}

func TestRing_PushReportsEviction(t *testing.T) {
	r := New[string](2)
	assert.False(t, r.Push("a"))
	assert.False(t, r.Push("b"))
	assert.True(t, r.Push("c"))
}

func TestRing_Last(t *testing.T) {
	r := New[int](10)
	for i := 0; i < 7; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{4, 5, 6}, r.Last(3))
	assert.Equal(t, 7, len(r.Last(50)))
	assert.Empty(t, r.Last(0))
}

func TestRing_ResizeKeepsNewest(t *testing.T) {
	r := New[int](5)
	for i := 0; i < 5; i++ {
		r.Push(i)
	}
	r.Resize(2)
	assert.Equal(t, []int{3, 4}, r.Items())
	assert.Equal(t, 2, r.Cap())

	r.Resize(4)
	r.Push(9)
	assert.Equal(t, []int{3, 4, 9}, r.Items())
}

func TestRing_JSONKeepsCapacity(t *testing.T) {
	r := New[int](3)
	raw, err := json.Marshal([]int{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &r))
	assert.Equal(t, []int{2, 3, 4}, r.Items())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `[2,3,4]`, string(out))
}

func TestRing_CloneIsIndependent(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	c := r.Clone()
	c.Push(2)
	c.Push(3)
	assert.Equal(t, []int{1}, r.Items())
	assert.Equal(t, []int{2, 3}, c.Items())
}

func TestRing_ZeroCapacityHoldsNothing(t *testing.T) {
	var r Ring[int]
	assert.True(t, r.Push(1))
	assert.Equal(t, 0, r.Len())
}
