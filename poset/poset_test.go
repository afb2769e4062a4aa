package poset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/segcache/bitkey"
)

func newBitKeyPoset() *Poset[bitkey.BitKey] {
	return New(
		bitkey.BitKey.Key,
		func(lesser, greater bitkey.BitKey) bool { return greater.IsSuperSetOf(lesser) },
		bitkey.BitKey.Count,
	)
}

func TestPosetAddRemove(t *testing.T) {
	p := newBitKeyPoset()
	a := bitkey.Of(0, 1)

	p.Add(a)
	p.Add(bitkey.Of(1, 0)) // same key
	assert.Equal(t, 1, p.Len())
	assert.True(t, p.Contains(a))

	p.Remove(a)
	assert.Equal(t, 0, p.Len())
	assert.False(t, p.Contains(a))
}

func TestPosetAncestorsPopcountOrder(t *testing.T) {
	p := newBitKeyPoset()
	p.Add(bitkey.Of(0))          // subset, not an ancestor
	p.Add(bitkey.Of(0, 1, 2, 3)) // 4 bits
	p.Add(bitkey.Of(0, 1, 2))    // 3 bits
	p.Add(bitkey.Of(0, 1))       // the element itself
	p.Add(bitkey.Of(0, 2))       // not a superset of {0,1}

	anc := p.Ancestors(bitkey.Of(0, 1))
	assert.Len(t, anc, 2)
	assert.True(t, anc[0].Equal(bitkey.Of(0, 1, 2)), "fewer extra bits first")
	assert.True(t, anc[1].Equal(bitkey.Of(0, 1, 2, 3)))
}

func TestPosetAncestorsDeterministicTieBreak(t *testing.T) {
	p := newBitKeyPoset()
	p.Add(bitkey.Of(0, 1, 2))
	p.Add(bitkey.Of(0, 1, 3))

	for i := 0; i < 5; i++ {
		anc := p.Ancestors(bitkey.Of(0, 1))
		assert.Len(t, anc, 2)
		assert.True(t, anc[0].Equal(bitkey.Of(0, 1, 2)))
		assert.True(t, anc[1].Equal(bitkey.Of(0, 1, 3)))
	}
}

func TestPosetAncestorsOfUnknownElement(t *testing.T) {
	p := newBitKeyPoset()
	p.Add(bitkey.Of(0, 1))

	anc := p.Ancestors(bitkey.Of(0))
	assert.Len(t, anc, 1, "ancestor query does not require membership")
}
