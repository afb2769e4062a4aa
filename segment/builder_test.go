package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segcache/bitkey"
)

// stateGenderInput is the S3 scenario source: a two-dimensional segment
// over State in {CA,OR} and Gender in {F,M} with cells 1..4.
func stateGenderInput() RollupInput {
	header := NewHeader(
		testProvenance(),
		[]Column{
			NewColumn("state", vs("CA", "OR")),
			NewColumn("gender", vs("F", "M")),
		},
		nil,
		bitkey.Of(0, 1),
		nil,
	)
	body := NewDenseFloatBody([]float64{1, 2, 3, 4}, nil, []AxisValues{
		{Values: vs("CA", "OR")},
		{Values: vs("F", "M")},
	})
	return RollupInput{Header: header, Body: body}
}

func TestRollupByProjection(t *testing.T) {
	in := stateGenderInput()

	header, body, err := Rollup([]RollupInput{in}, []string{"state"}, bitkey.Of(0), Sum, -1)
	require.NoError(t, err)

	require.Equal(t, 1, header.Arity())
	state := header.ConstrainedColumns()[0]
	assert.Equal(t, "state", state.Expression())
	assert.True(t, state.Values().Equal(vs("CA", "OR")))
	assert.True(t, header.BitKey().Equal(bitkey.Of(0)))
	assert.Empty(t, header.ExcludedRegions())

	m := body.ValueMap()
	require.Len(t, m, 2)
	assert.Equal(t, 0, Compare(FloatValue(3), m[NewCellKey([]int{0})])) // CA: 1+2
	assert.Equal(t, 0, Compare(FloatValue(7), m[NewCellKey([]int{1})])) // OR: 3+4
}

func TestRollupIdempotentOnIdentity(t *testing.T) {
	in := stateGenderInput()

	header, body, err := Rollup([]RollupInput{in}, []string{"state", "gender"}, bitkey.Of(0, 1), Sum, -1)
	require.NoError(t, err)

	assert.Equal(t, in.Header.UniqueID(), header.UniqueID())
	assert.True(t, BodiesEqual(in.Body, body))
}

func TestRollupLostPredicate(t *testing.T) {
	mk := func(states *ValueSet, cells map[CellKey]Value) RollupInput {
		header := NewHeader(testProvenance(),
			[]Column{NewColumn("state", states)}, nil, bitkey.Of(0), nil)
		body := NewSparseBody(cells, []AxisValues{{Values: states}})
		return RollupInput{Header: header, Body: body}
	}
	a := mk(vs("CA", "OR"), map[CellKey]Value{
		NewCellKey([]int{0}): IntValue(1), // CA
		NewCellKey([]int{1}): IntValue(2), // OR
	})
	b := mk(vs("OR", "WA"), map[CellKey]Value{
		NewCellKey([]int{0}): IntValue(3), // OR
		NewCellKey([]int{1}): IntValue(4), // WA
	})

	header, body, err := Rollup([]RollupInput{a, b}, []string{"state"}, bitkey.Of(0), Sum, -1)
	require.NoError(t, err)

	// The inputs requested incompatible predicates; the result's predicate
	// is the observed intersection.
	state := header.ConstrainedColumns()[0]
	assert.True(t, state.Values().Equal(vs("OR")))

	m := body.ValueMap()
	require.Len(t, m, 1)
	assert.Equal(t, 0, Compare(IntValue(5), m[NewCellKey([]int{0})])) // OR: 2+3
}

func TestRollupPreservesCompoundPredicates(t *testing.T) {
	in := stateGenderInput()
	cp := []string{"(state='CA' AND gender='F') OR (state='OR' AND gender='M')"}
	in.Header = NewHeader(in.Header.Provenance(), in.Header.ConstrainedColumns(),
		cp, in.Header.BitKey(), nil)

	header, _, err := Rollup([]RollupInput{in}, []string{"state"}, bitkey.Of(0), Sum, -1)
	require.NoError(t, err)
	assert.Equal(t, cp, header.CompoundPredicates())
}

func TestRollupSparseSelection(t *testing.T) {
	// One cell out of four, threshold 0.5: sparse.
	header := stateGenderInput().Header
	body := NewSparseBody(map[CellKey]Value{
		NewCellKey([]int{0, 0}): FloatValue(1),
	}, []AxisValues{
		{Values: vs("CA", "OR")},
		{Values: vs("F", "M")},
	})

	_, out, err := Rollup([]RollupInput{{Header: header, Body: body}},
		[]string{"state", "gender"}, bitkey.Of(0, 1), Sum, -1)
	require.NoError(t, err)
	assert.IsType(t, &SparseBody{}, out)
}

func TestRollupDenseIntSelection(t *testing.T) {
	header := NewHeader(testProvenance(),
		[]Column{NewColumn("state", vs("CA", "OR"))}, nil, bitkey.Of(0), nil)
	body := NewDenseIntBody([]int64{5, 6}, nil, []AxisValues{{Values: vs("CA", "OR")}})

	_, out, err := Rollup([]RollupInput{{Header: header, Body: body}},
		[]string{"state"}, bitkey.Of(0), Sum, -1)
	require.NoError(t, err)
	require.IsType(t, &DenseIntBody{}, out)
	assert.Equal(t, []int64{5, 6}, out.(*DenseIntBody).Values())
}

func TestRollupEmptyInputs(t *testing.T) {
	_, _, err := Rollup(nil, []string{"state"}, bitkey.Of(0), Sum, -1)
	assert.Error(t, err)
}

func TestRollupNoSurvivingCells(t *testing.T) {
	// Disjoint axes: the intersection is empty and so is the output body.
	mk := func(states *ValueSet) RollupInput {
		header := NewHeader(testProvenance(),
			[]Column{NewColumn("state", states)}, nil, bitkey.Of(0), nil)
		body := NewSparseBody(map[CellKey]Value{
			NewCellKey([]int{0}): IntValue(1),
		}, []AxisValues{{Values: states}})
		return RollupInput{Header: header, Body: body}
	}

	_, out, err := Rollup([]RollupInput{mk(vs("CA")), mk(vs("WA"))},
		[]string{"state"}, bitkey.Of(0), Sum, -1)
	require.NoError(t, err)
	assert.IsType(t, &DenseObjectBody{}, out)
	assert.Empty(t, out.ValueMap())
}

func TestRollupMismatchedInputs(t *testing.T) {
	a := stateGenderInput()
	prov := testProvenance()
	prov.MeasureName = "Store Sales"
	b := stateGenderInput()
	b.Header = NewHeader(prov, b.Header.ConstrainedColumns(), nil, b.Header.BitKey(), nil)

	_, _, err := Rollup([]RollupInput{a, b}, []string{"state"}, bitkey.Of(0), Sum, -1)
	assert.Error(t, err)
}

func TestAggregators(t *testing.T) {
	ints := []Value{IntValue(3), IntValue(5), Null}
	mixed := []Value{IntValue(1), FloatValue(2.5)}

	assert.Equal(t, IntValue(8), Sum.Aggregate(ints))
	assert.Equal(t, 0, Compare(FloatValue(3.5), Sum.Aggregate(mixed)))
	assert.Equal(t, IntValue(2), Count.Aggregate(ints))
	assert.Equal(t, IntValue(3), Min.Aggregate(ints))
	assert.Equal(t, IntValue(5), Max.Aggregate(ints))

	assert.Equal(t, Null, Sum.Aggregate(nil))
	assert.Equal(t, Null, Min.Aggregate([]Value{Null}))
	assert.Equal(t, IntValue(0), Count.Aggregate([]Value{Null}))

	for _, name := range []string{"sum", "count", "min", "max"} {
		agg, ok := AggregatorByName(name)
		assert.True(t, ok)
		assert.Equal(t, name, agg.Name())
	}
	_, ok := AggregatorByName("median")
	assert.False(t, ok)
}
