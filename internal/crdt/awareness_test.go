package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAwareness_ApplyUpdateAddsNewEntries(t *testing.T) {
	a := NewAwareness()
	diff := a.ApplyUpdate([]uint32{1, 2}, []uint32{1, 1}, [][]byte{[]byte("s1"), []byte("s2")})

	assert.ElementsMatch(t, []uint32{1, 2}, diff.Added)
	assert.Empty(t, diff.Updated)
	assert.Equal(t, 2, a.Len())
}

func TestAwareness_ApplyUpdateIgnoresStaleClock(t *testing.T) {
	a := NewAwareness()
	a.ApplyUpdate([]uint32{1}, []uint32{5}, [][]byte{[]byte("newer")})

	diff := a.ApplyUpdate([]uint32{1}, []uint32{2}, [][]byte{[]byte("stale")})
	assert.Empty(t, diff.Updated)
	assert.Empty(t, diff.Added)

	ids, clocks, states := a.EncodeAll()
	assert.Equal(t, []uint32{1}, ids)
	assert.Equal(t, []uint32{5}, clocks)
	assert.Equal(t, [][]byte{[]byte("newer")}, states)
}

func TestAwareness_ApplyUpdateAcceptsAdvancedClock(t *testing.T) {
	a := NewAwareness()
	a.ApplyUpdate([]uint32{1}, []uint32{1}, [][]byte{[]byte("v1")})

	diff := a.ApplyUpdate([]uint32{1}, []uint32{2}, [][]byte{[]byte("v2")})
	assert.Equal(t, []uint32{1}, diff.Updated)
}

func TestAwareness_NilStateRemoves(t *testing.T) {
	a := NewAwareness()
	a.ApplyUpdate([]uint32{1}, []uint32{1}, [][]byte{[]byte("v1")})

	diff := a.ApplyUpdate([]uint32{1}, []uint32{2}, [][]byte{nil})
	assert.Equal(t, []uint32{1}, diff.Removed)
	assert.Equal(t, 0, a.Len())
}

func TestAwareness_RemoveOnlyReturnsPresentIDs(t *testing.T) {
	a := NewAwareness()
	a.ApplyUpdate([]uint32{1, 2}, []uint32{1, 1}, [][]byte{[]byte("a"), []byte("b")})

	removed := a.Remove([]uint32{2, 99})
	assert.Equal(t, []uint32{2}, removed)
	assert.Equal(t, 1, a.Len())
}
