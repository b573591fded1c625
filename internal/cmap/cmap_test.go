package cmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetRemove(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	m.Remove("a")
	_, ok = m.Get("a")
	require.False(t, ok)
}

func TestUpsertAppends(t *testing.T) {
	m := New[[]int]()
	m.Upsert("k", func(existing []int, found bool) []int { return append(existing, 1) })
	m.Upsert("k", func(existing []int, found bool) []int { return append(existing, 2) })

	v, ok := m.Get("k")
	require.True(t, ok)
	require.Equal(t, []int{1, 2}, v)
}

func TestRemoveIfRejectsMismatch(t *testing.T) {
	m := New[string]()
	m.Set("k", "v1")

	removed := m.RemoveIf("k", func(v string) bool { return v == "v2" })
	require.False(t, removed)

	v, ok := m.Get("k")
	require.True(t, ok)
	require.Equal(t, "v1", v)

	removed = m.RemoveIf("k", func(v string) bool { return v == "v1" })
	require.True(t, removed)
	_, ok = m.Get("k")
	require.False(t, ok)
}

func TestItemsSnapshot(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)

	items := m.Items()
	require.Equal(t, map[string]int{"a": 1, "b": 2}, items)
}
