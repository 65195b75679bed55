package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictInsertAndGet(t *testing.T) {
	d := NewDict([]string{"run", "runn", "running"}, []int{1, 2, 3})

	v, ok := d.Get("run")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = d.Get("ru")
	assert.False(t, ok)
}

func TestDictPrefixesAndValues(t *testing.T) {
	d := NewDict([]string{"run", "running"}, []int{1, 2})

	keys, values := d.PrefixesAndValues("running")
	assert.Equal(t, []string{"run", "running"}, keys)
	assert.Equal(t, []int{1, 2}, values)
}

func TestDictInsertOverwrites(t *testing.T) {
	d := NewDict(nil, nil)
	d.Insert("cat", 1)
	d.Insert("cat", 2)
	v, ok := d.Get("cat")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLookupAccumulatesValues(t *testing.T) {
	l := NewLookup([]string{"ing", "ing", "s"}, []int{1, 2, 3})

	assert.Equal(t, []int{1, 2}, l.Get("ing"))
	assert.Equal(t, []int{3}, l.Get("s"))
	assert.Nil(t, l.Get("x"))
}

func TestLookupPrefixesAndValues(t *testing.T) {
	l := NewLookup([]string{"s", "ing"}, []int{10, 20})

	keys, values := l.PrefixesAndValues("ings")
	assert.Equal(t, []string{"ing"}, keys)
	assert.Equal(t, [][]int{{20}}, values)
}

func TestValuesEnumeratesAll(t *testing.T) {
	d := NewDict([]string{"a", "b", "ab"}, []int{1, 2, 3})
	values := d.Values()
	assert.ElementsMatch(t, []int{1, 2, 3}, values)
}
