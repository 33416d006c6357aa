package table

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/value"
)

func TestSetGetDelete(t *testing.T) {
	tbl := New()
	key := value.NewObjString("answer")

	_, ok := tbl.Get(key)
	assert.False(t, ok, "fresh table has no entries")

	isNew := tbl.Set(key, value.Number(42))
	assert.True(t, isNew)

	v, ok := tbl.Get(key)
	require.True(t, ok)
	assert.True(t, value.Equal(value.Number(42), v))

	isNew = tbl.Set(key, value.Number(43))
	assert.False(t, isNew, "overwriting an existing key is not a fresh insert")

	require.True(t, tbl.Delete(key))
	_, ok = tbl.Get(key)
	assert.False(t, ok, "deleted key is no longer found")
}

func TestDeleteLeavesTombstoneSoLaterProbesStillResolve(t *testing.T) {
	tbl := New()
	// Force everything into the same initial bucket so a tombstone actually
	// sits between the first and third key on the probe chain.
	a := &value.ObjString{Chars: "a", Hash: 0}
	b := &value.ObjString{Chars: "b", Hash: 0}
	c := &value.ObjString{Chars: "c", Hash: 0}

	tbl.Set(a, value.Number(1))
	tbl.Set(b, value.Number(2))
	tbl.Set(c, value.Number(3))

	require.True(t, tbl.Delete(b))

	v, ok := tbl.Get(c)
	require.True(t, ok, "tombstone left by deleting b must not break the probe to c")
	assert.True(t, value.Equal(value.Number(3), v))
}

func TestGrowRehashesAndDropsTombstones(t *testing.T) {
	tbl := New()
	const n = 64
	keys := make([]*value.ObjString, n)
	for i := 0; i < n; i++ {
		keys[i] = value.NewObjString(fmt.Sprintf("key-%d", i))
		tbl.Set(keys[i], value.Number(float64(i)))
	}
	for i := 0; i < n; i += 2 {
		tbl.Delete(keys[i])
	}
	// The deletes leave n/2 tombstones; growing again must drop them.
	require.Equal(t, n, tbl.count)
	tbl.grow(growCapacity(len(tbl.entries)))
	assert.Equal(t, n/2, tbl.count)

	assert.Equal(t, n/2, tbl.Count())
	for i := 1; i < n; i += 2 {
		v, ok := tbl.Get(keys[i])
		require.True(t, ok)
		assert.True(t, value.Equal(value.Number(float64(i)), v))
	}
}

func TestFindStringIsContentEquality(t *testing.T) {
	tbl := New()
	s := &value.ObjString{Chars: "shared", Hash: value.HashString("shared")}
	tbl.Set(s, value.Nil)

	found := tbl.FindString("shared", value.HashString("shared"))
	require.NotNil(t, found)
	assert.Same(t, s, found, "FindString must return the original interned pointer")

	assert.Nil(t, tbl.FindString("unshared", value.HashString("unshared")))
}

func TestFindStringSkipsTombstones(t *testing.T) {
	tbl := New()
	a := &value.ObjString{Chars: "a", Hash: 0}
	b := &value.ObjString{Chars: "b", Hash: 0}
	tbl.Set(a, value.Nil)
	tbl.Set(b, value.Nil)
	tbl.Delete(a)

	found := tbl.FindString("b", 0)
	require.NotNil(t, found)
	assert.Same(t, b, found)
}
