package segment

import (
	"errors"
	"fmt"

	"github.com/hupe1980/segcache/bitkey"
)

// DefaultDensityThreshold is the fill ratio at or above which a rollup
// result is stored densely.
const DefaultDensityThreshold = 0.5

// RollupInput pairs a source header with its body. Rollup consumes an
// ordered slice rather than a map so that results are reproducible.
type RollupInput struct {
	Header *Header
	Body   Body
}

var errEmptyRollup = errors.New("segment: rollup requires at least one input")

// rollupAxis tracks the reconciliation state of one kept axis.
type rollupAxis struct {
	column        Column // from the first header
	src           int    // axis index in the source bodies
	requested     *ValueSet
	requestedSeen bool
	valueSet      *ValueSet
	hasNull       bool
	lostPredicate bool
}

// Rollup combines segments of one dimensionality into a segment of reduced
// dimensionality, keeping only the named columns and aggregating the cells
// that collapse together.
//
// All inputs must share provenance and bit key. keepColumns names the
// columns to keep; targetBits is the resulting dimensionality tag. The
// density threshold decides sparse versus dense storage; pass a negative
// value for the default. The result's predicate per axis is the first
// input's predicate unless the inputs disagreed, in which case the
// predicate is demoted to the observed value set.
func Rollup(
	inputs []RollupInput,
	keepColumns []string,
	targetBits bitkey.BitKey,
	agg Aggregator,
	densityThreshold float64,
) (*Header, Body, error) {
	if len(inputs) == 0 {
		return nil, nil, errEmptyRollup
	}
	if densityThreshold < 0 {
		densityThreshold = DefaultDensityThreshold
	}
	first := inputs[0].Header
	for _, in := range inputs[1:] {
		if in.Header.Provenance() != first.Provenance() || !in.Header.BitKey().Equal(first.BitKey()) {
			return nil, nil, fmt.Errorf("segment: rollup inputs disagree on provenance or dimensionality")
		}
	}

	keep := make(map[string]bool, len(keepColumns))
	for _, k := range keepColumns {
		keep[k] = true
	}

	// Pick the kept axes from the first header, in header order.
	axes := make([]*rollupAxis, 0, len(keepColumns))
	for j, col := range first.ConstrainedColumns() {
		if keep[col.Expression()] {
			axes = append(axes, &rollupAxis{column: col, src: j})
		}
	}
	if len(axes) != len(keepColumns) {
		return nil, nil, fmt.Errorf("segment: rollup keeps %d columns but found %d in header",
			len(keepColumns), len(axes))
	}

	// Reconcile each kept axis across the inputs: the target axis is the
	// intersection of the observed value sets, NULL only if every input
	// had it, and the predicate survives only if the inputs agreed.
	for _, in := range inputs {
		sets := in.Body.AxisValueSets()
		flags := in.Body.NullAxisFlags()
		for _, axis := range axes {
			values := sets[axis.src]
			hasNull := flags[axis.src]
			headerCol, ok := in.Header.ConstrainedColumn(axis.column.Expression())
			if !ok {
				return nil, nil, fmt.Errorf("segment: rollup input lacks column %q", axis.column.Expression())
			}
			requested := headerCol.Values()
			if !axis.requestedSeen {
				axis.valueSet = values
				axis.hasNull = hasNull
				axis.requested = requested
				axis.requestedSeen = true
				continue
			}
			axis.valueSet = axis.valueSet.Intersect(values)
			axis.hasNull = axis.hasNull && hasNull
			if !valueSetsEqual(axis.requested, requested) {
				if axis.requested == nil {
					// Downgrade from wildcard to a specific list.
					axis.requested = requested
				} else {
					// Incompatible predicates. Best we can say is "we must
					// have asked for the values that came back".
					axis.lostPredicate = true
				}
			}
		}
	}

	// Translate every source cell onto the target axes and collect the
	// values that collapse onto each target cell.
	cellValues := make(map[CellKey][]Value)
	for _, in := range inputs {
		sets := in.Body.AxisValueSets()
		arity := len(sets)

		// Source coordinate arrays; nil for axes being projected away.
		valueArrays := make([][]Value, arity)
		for _, axis := range axes {
			valueArrays[axis.src] = sets[axis.src].Values()
		}

		pos := make([]int, len(axes))
		for key, val := range in.Body.ValueMap() {
			z := 0
			ok := true
			for i := 0; i < arity; i++ {
				arr := valueArrays[i]
				if arr == nil {
					continue
				}
				ord := key.Ordinal(i)
				if ord >= len(arr) {
					// NULL coordinate slot.
					if !axes[z].hasNull {
						ok = false
						break
					}
					pos[z] = axes[z].valueSet.Len()
				} else {
					t := axes[z].valueSet.IndexOf(arr[ord])
					if t < 0 {
						// Outside the reconciled intersection.
						ok = false
						break
					}
					pos[z] = t
				}
				z++
			}
			if !ok {
				continue
			}
			ck := NewCellKey(pos)
			cellValues[ck] = append(cellValues[ck], val)
		}
	}

	// Target axis list and capacity.
	axisList := make([]AxisValues, len(axes))
	for i, axis := range axes {
		axisList[i] = AxisValues{Values: axis.valueSet, HasNull: axis.hasNull}
	}
	_, capacity := axisMultipliers(axisList)

	body := buildRollupBody(cellValues, axisList, capacity, agg, densityThreshold)

	// Synthesize the header: provenance and compound predicates come from
	// the first input verbatim; excluded regions start empty.
	cols := make([]Column, len(axes))
	for i, axis := range axes {
		if axis.lostPredicate {
			cols[i] = NewColumn(axis.column.Expression(), axis.valueSet)
		} else {
			cols[i] = NewColumn(axis.column.Expression(), axis.column.Values())
		}
	}
	header := NewHeader(first.Provenance(), cols, first.CompoundPredicates(), targetBits, nil)
	return header, body, nil
}

func valueSetsEqual(a, b *ValueSet) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// buildRollupBody aggregates the accumulated cells and picks a storage
// variant: sparse below the density threshold, otherwise the dense variant
// matching the aggregated value types.
func buildRollupBody(
	cellValues map[CellKey][]Value,
	axisList []AxisValues,
	capacity int,
	agg Aggregator,
	densityThreshold float64,
) Body {
	if len(cellValues) == 0 {
		return NewDenseObjectBody(nil, axisList)
	}

	aggregated := make(map[CellKey]Value, len(cellValues))
	allInt, allNumeric := true, true
	for key, vals := range cellValues {
		v := agg.Aggregate(vals)
		aggregated[key] = v
		if v.K != KindInt {
			allInt = false
		}
		if !v.IsNumeric() && !v.IsNull() {
			allNumeric = false
		}
	}

	if float64(len(aggregated)) < densityThreshold*float64(capacity) {
		return NewSparseBody(aggregated, axisList)
	}

	mult, _ := axisMultipliers(axisList)
	switch {
	case allInt:
		values := make([]int64, capacity)
		nulls := NewNullMask()
		fillDense(aggregated, mult, capacity, nulls, func(off int, v Value) {
			values[off] = v.I
		})
		return NewDenseIntBody(values, nulls, axisList)
	case allNumeric:
		values := make([]float64, capacity)
		nulls := NewNullMask()
		fillDense(aggregated, mult, capacity, nulls, func(off int, v Value) {
			values[off] = v.Float64()
		})
		return NewDenseFloatBody(values, nulls, axisList)
	default:
		values := make([]Value, capacity) // zero Value is NULL
		for key, v := range aggregated {
			values[offsetOf(key, mult)] = v
		}
		return NewDenseObjectBody(values, axisList)
	}
}

func fillDense(
	aggregated map[CellKey]Value,
	mult []int,
	capacity int,
	nulls *NullMask,
	store func(off int, v Value),
) {
	filled := make([]bool, capacity)
	for key, v := range aggregated {
		off := offsetOf(key, mult)
		if v.IsNull() {
			continue
		}
		filled[off] = true
		store(off, v)
	}
	for i := 0; i < capacity; i++ {
		if !filled[i] {
			nulls.Set(i)
		}
	}
}
