package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segcache/bitkey"
	"github.com/hupe1980/segcache/codec"
)

func testProvenance() Provenance {
	return Provenance{
		SchemaName:     "FoodMart",
		SchemaChecksum: "abc123",
		CubeName:       "Sales",
		MeasureName:    "Unit Sales",
		FactTableName:  "sales_fact",
	}
}

func testHeader() *Header {
	return NewHeader(
		testProvenance(),
		[]Column{
			NewColumn("state", vs("CA", "OR", "WA")),
			Wildcard("gender"),
		},
		nil,
		bitkey.Of(0, 1),
		nil,
	)
}

func TestHeaderIdentity(t *testing.T) {
	a := testHeader()
	b := testHeader()

	assert.Equal(t, a.UniqueID(), b.UniqueID())
	assert.Equal(t, a.HashCode(), b.HashCode())
	assert.True(t, a.Equal(b))

	// Memoized second access.
	assert.Equal(t, a.UniqueID(), a.UniqueID())
}

func TestHeaderIdentityDiffers(t *testing.T) {
	base := testHeader()

	prov := testProvenance()
	prov.MeasureName = "Store Sales"
	diffMeasure := NewHeader(prov, base.ConstrainedColumns(), nil, bitkey.Of(0, 1), nil)
	assert.NotEqual(t, base.UniqueID(), diffMeasure.UniqueID())

	diffValues := NewHeader(testProvenance(), []Column{
		NewColumn("state", vs("CA", "OR")),
		Wildcard("gender"),
	}, nil, bitkey.Of(0, 1), nil)
	assert.NotEqual(t, base.UniqueID(), diffValues.UniqueID())

	diffCompound := NewHeader(testProvenance(), base.ConstrainedColumns(),
		[]string{"(a=1 AND b=2)"}, bitkey.Of(0, 1), nil)
	assert.NotEqual(t, base.UniqueID(), diffCompound.UniqueID())
}

func TestHeaderConstrainedColumnLookup(t *testing.T) {
	h := testHeader()

	c, ok := h.ConstrainedColumn("state")
	require.True(t, ok)
	assert.Equal(t, "state", c.Expression())

	_, ok = h.ConstrainedColumn("city")
	assert.False(t, ok)

	_, ok = h.ExcludedRegion("state")
	assert.False(t, ok)
}

func TestHeaderClone(t *testing.T) {
	h := testHeader()

	clone := h.Clone([]Column{
		NewColumn("state", vs("TX")),
		NewColumn("city", vs("Austin")),
	})

	state, ok := clone.ConstrainedColumn("state")
	require.True(t, ok)
	assert.True(t, state.Values().Contains(StringValue("TX")))
	assert.Equal(t, 1, state.Values().Len())

	_, ok = clone.ConstrainedColumn("city")
	assert.True(t, ok)

	gender, ok := clone.ConstrainedColumn("gender")
	require.True(t, ok)
	assert.True(t, gender.IsWildcard())

	// Original untouched.
	orig, _ := h.ConstrainedColumn("state")
	assert.Equal(t, 3, orig.Values().Len())
}

func TestHeaderIsSubset(t *testing.T) {
	a := testHeader()
	b := testHeader()
	assert.True(t, a.IsSubset(b))

	c := NewHeader(testProvenance(), []Column{NewColumn("state", vs("CA"))}, nil, bitkey.Of(0), nil)
	assert.False(t, a.IsSubset(c))

	prov := testProvenance()
	prov.CubeName = "Warehouse"
	d := NewHeader(prov, a.ConstrainedColumns(), nil, bitkey.Of(0, 1), nil)
	assert.False(t, a.IsSubset(d))
}

func TestHeaderRoundTrip(t *testing.T) {
	codecs := []codec.Codec{codec.JSON{}, codec.NewZstd(nil), codec.NewLZ4(nil)}
	h := NewHeader(
		testProvenance(),
		[]Column{
			NewColumn("state", vs("CA", "OR")),
			NewColumn("year", vs(1997, 1998)),
			Wildcard("gender"),
		},
		[]string{"(state='CA' AND gender='F')"},
		bitkey.Of(0, 2, 5),
		[]Column{NewColumn("state", vs("OR"))},
	)
	for _, c := range codecs {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := EncodeHeader(c, h)
			require.NoError(t, err)
			got, err := DecodeHeader(c, data)
			require.NoError(t, err)

			assert.Equal(t, h.UniqueID(), got.UniqueID())
			assert.Equal(t, h.HashCode(), got.HashCode())
			assert.Equal(t, h.Provenance(), got.Provenance())
			assert.True(t, h.BitKey().Equal(got.BitKey()))
			assert.Equal(t, h.CompoundPredicates(), got.CompoundPredicates())
			require.Len(t, got.ExcludedRegions(), 1)
			assert.True(t, h.ExcludedRegions()[0].Equal(got.ExcludedRegions()[0]))
		})
	}
}

func TestHeaderDescription(t *testing.T) {
	desc := testHeader().Description()
	assert.True(t, strings.Contains(desc, "FoodMart"))
	assert.True(t, strings.Contains(desc, "state=(CA,OR,WA)"))
	assert.True(t, strings.Contains(desc, "gender=*"))
	assert.True(t, strings.Contains(desc, testHeader().UniqueID()))
}
