package segment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnMergeCommutative(t *testing.T) {
	a := NewColumn("state", vs("CA", "OR"))
	b := NewColumn("state", vs("OR", "WA"))

	ab := a.Merge(b)
	ba := b.Merge(a)
	assert.True(t, ab.Equal(ba))
	assert.Equal(t, 3, ab.Values().Len())
}

func TestColumnMergeWildcardDominates(t *testing.T) {
	a := NewColumn("state", vs("CA"))
	w := Wildcard("state")

	assert.True(t, a.Merge(w).IsWildcard())
	assert.True(t, w.Merge(a).IsWildcard())
	assert.True(t, w.Merge(w).IsWildcard())
}

func TestColumnMergeDifferentExpressionsPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewColumn("state", vs("CA")).Merge(NewColumn("gender", vs("F")))
	})
}

func TestColumnEqualAndHash(t *testing.T) {
	a := NewColumn("state", vs("CA", "OR"))
	b := NewColumn("state", vs("OR", "CA"))
	c := NewColumn("state", vs("CA"))

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.False(t, a.Equal(Wildcard("state")))
}

func TestColumnContains(t *testing.T) {
	c := NewColumn("state", vs("CA", "OR"))
	assert.True(t, c.Contains(StringValue("CA")))
	assert.False(t, c.Contains(StringValue("TX")))
	assert.True(t, Wildcard("state").Contains(StringValue("anything")))
}

func TestColumnJSONRoundTrip(t *testing.T) {
	for _, c := range []Column{
		NewColumn("state", vs("CA", "OR")),
		Wildcard("gender"),
	} {
		data, err := json.Marshal(c)
		require.NoError(t, err)
		var got Column
		require.NoError(t, json.Unmarshal(data, &got))
		assert.True(t, c.Equal(got))
		assert.Equal(t, c.Hash(), got.Hash())
	}
}
