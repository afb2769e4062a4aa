package segment

import (
	"encoding/json"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// AxisValues describes one axis of a segment body: the sorted set of
// coordinate values observed on that axis, and whether the source data also
// contained a NULL coordinate. When HasNull is set, the NULL coordinate
// occupies one extra ordinal slot at the tail of the axis.
type AxisValues struct {
	Values  *ValueSet `json:"values"`
	HasNull bool      `json:"hasNull,omitempty"`
}

// length returns the ordinal count of the axis including the NULL slot.
func (a AxisValues) length() int {
	n := a.Values.Len()
	if a.HasNull {
		n++
	}
	return n
}

// NullMask is a bitmap of linear cell indexes whose value is NULL.
type NullMask struct {
	bits *roaring.Bitmap
}

// NewNullMask returns an empty mask.
func NewNullMask() *NullMask {
	return &NullMask{bits: roaring.New()}
}

// Set marks index i as NULL.
func (m *NullMask) Set(i int) { m.bits.Add(uint32(i)) }

// Contains reports whether index i is NULL.
func (m *NullMask) Contains(i int) bool { return m.bits.Contains(uint32(i)) }

// Count returns the number of NULL cells.
func (m *NullMask) Count() int { return int(m.bits.GetCardinality()) }

var (
	_ json.Marshaler   = (*NullMask)(nil)
	_ json.Unmarshaler = (*NullMask)(nil)
)

// MarshalJSON encodes the mask as a JSON array of indexes.
func (m *NullMask) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.bits.ToArray())
}

// UnmarshalJSON decodes a JSON array of indexes.
func (m *NullMask) UnmarshalJSON(data []byte) error {
	var idx []uint32
	if err := json.Unmarshal(data, &idx); err != nil {
		return err
	}
	m.bits = roaring.BitmapOf(idx...)
	return nil
}

// Body is the immutable cell payload of a segment.
//
// All variants expose their axes and a sparse view of their cells; rollup
// reads every body through ValueMap regardless of storage.
type Body interface {
	// Axes returns the per-axis value sets and NULL flags.
	Axes() []AxisValues
	// AxisValueSets returns just the value sets, aligned with Axes.
	AxisValueSets() []*ValueSet
	// NullAxisFlags returns just the NULL flags, aligned with Axes.
	NullAxisFlags() []bool
	// ValueMap returns the non-null cells keyed by their cell position.
	ValueMap() map[CellKey]Value
	// CellCount returns the number of non-null cells stored.
	CellCount() int

	kindName() string
}

func axisValueSets(axes []AxisValues) []*ValueSet {
	out := make([]*ValueSet, len(axes))
	for i, a := range axes {
		out[i] = a.Values
	}
	return out
}

func nullAxisFlags(axes []AxisValues) []bool {
	out := make([]bool, len(axes))
	for i, a := range axes {
		out[i] = a.HasNull
	}
	return out
}

// axisMultipliers computes the row-major linear-index multipliers for the
// given axes, last axis fastest. Also returns the total cell capacity.
func axisMultipliers(axes []AxisValues) ([]int, int) {
	mult := make([]int, len(axes))
	m := 1
	for i := len(axes) - 1; i >= 0; i-- {
		mult[i] = m
		m *= axes[i].length()
	}
	return mult, m
}

// offsetOf converts a cell key to a linear index using the multipliers.
func offsetOf(key CellKey, mult []int) int {
	off := 0
	for i := range mult {
		off += key.Ordinal(i) * mult[i]
	}
	return off
}

// keyOf converts a linear index back to a cell key.
func keyOf(off int, axes []AxisValues) CellKey {
	ords := make([]int, len(axes))
	for i := len(axes) - 1; i >= 0; i-- {
		n := axes[i].length()
		ords[i] = off % n
		off /= n
	}
	return NewCellKey(ords)
}

// DenseFloatBody stores float64 cells in a dense array with a NULL bitmap.
type DenseFloatBody struct {
	values []float64
	nulls  *NullMask
	axes   []AxisValues
}

// NewDenseFloatBody creates a dense float body. The value array length must
// equal the product of the axis lengths (including NULL slots); cells whose
// index is in nulls are NULL. Ownership of the arguments transfers.
func NewDenseFloatBody(values []float64, nulls *NullMask, axes []AxisValues) *DenseFloatBody {
	if nulls == nil {
		nulls = NewNullMask()
	}
	return &DenseFloatBody{values: values, nulls: nulls, axes: axes}
}

func (b *DenseFloatBody) Axes() []AxisValues         { return b.axes }
func (b *DenseFloatBody) AxisValueSets() []*ValueSet { return axisValueSets(b.axes) }
func (b *DenseFloatBody) NullAxisFlags() []bool      { return nullAxisFlags(b.axes) }
func (b *DenseFloatBody) CellCount() int             { return len(b.values) - b.nulls.Count() }
func (b *DenseFloatBody) kindName() string           { return "dense-float" }

// Values returns the dense value array. Read-only.
func (b *DenseFloatBody) Values() []float64 { return b.values }

// Nulls returns the NULL bitmap.
func (b *DenseFloatBody) Nulls() *NullMask { return b.nulls }

func (b *DenseFloatBody) ValueMap() map[CellKey]Value {
	out := make(map[CellKey]Value, b.CellCount())
	for i, v := range b.values {
		if b.nulls.Contains(i) {
			continue
		}
		out[keyOf(i, b.axes)] = FloatValue(v)
	}
	return out
}

// DenseIntBody stores int64 cells in a dense array with a NULL bitmap.
type DenseIntBody struct {
	values []int64
	nulls  *NullMask
	axes   []AxisValues
}

// NewDenseIntBody creates a dense int body. See NewDenseFloatBody for the
// layout contract.
func NewDenseIntBody(values []int64, nulls *NullMask, axes []AxisValues) *DenseIntBody {
	if nulls == nil {
		nulls = NewNullMask()
	}
	return &DenseIntBody{values: values, nulls: nulls, axes: axes}
}

func (b *DenseIntBody) Axes() []AxisValues         { return b.axes }
func (b *DenseIntBody) AxisValueSets() []*ValueSet { return axisValueSets(b.axes) }
func (b *DenseIntBody) NullAxisFlags() []bool      { return nullAxisFlags(b.axes) }
func (b *DenseIntBody) CellCount() int             { return len(b.values) - b.nulls.Count() }
func (b *DenseIntBody) kindName() string           { return "dense-int" }

// Values returns the dense value array. Read-only.
func (b *DenseIntBody) Values() []int64 { return b.values }

// Nulls returns the NULL bitmap.
func (b *DenseIntBody) Nulls() *NullMask { return b.nulls }

func (b *DenseIntBody) ValueMap() map[CellKey]Value {
	out := make(map[CellKey]Value, b.CellCount())
	for i, v := range b.values {
		if b.nulls.Contains(i) {
			continue
		}
		out[keyOf(i, b.axes)] = IntValue(v)
	}
	return out
}

// DenseObjectBody stores arbitrary scalar cells in a dense array. NULL
// cells hold the NULL sentinel directly.
type DenseObjectBody struct {
	values []Value
	axes   []AxisValues
}

// NewDenseObjectBody creates a dense object body.
func NewDenseObjectBody(values []Value, axes []AxisValues) *DenseObjectBody {
	return &DenseObjectBody{values: values, axes: axes}
}

func (b *DenseObjectBody) Axes() []AxisValues         { return b.axes }
func (b *DenseObjectBody) AxisValueSets() []*ValueSet { return axisValueSets(b.axes) }
func (b *DenseObjectBody) NullAxisFlags() []bool      { return nullAxisFlags(b.axes) }
func (b *DenseObjectBody) kindName() string           { return "dense-object" }

// Values returns the dense value array. Read-only.
func (b *DenseObjectBody) Values() []Value { return b.values }

func (b *DenseObjectBody) CellCount() int {
	n := 0
	for _, v := range b.values {
		if !v.IsNull() {
			n++
		}
	}
	return n
}

func (b *DenseObjectBody) ValueMap() map[CellKey]Value {
	out := make(map[CellKey]Value)
	for i, v := range b.values {
		if v.IsNull() {
			continue
		}
		out[keyOf(i, b.axes)] = v
	}
	return out
}

// SparseBody stores cells as parallel key/value arrays.
type SparseBody struct {
	keys   []CellKey
	values []Value
	axes   []AxisValues
}

// NewSparseBody creates a sparse body from a cell map.
func NewSparseBody(cells map[CellKey]Value, axes []AxisValues) *SparseBody {
	b := &SparseBody{
		keys:   make([]CellKey, 0, len(cells)),
		values: make([]Value, 0, len(cells)),
		axes:   axes,
	}
	for k, v := range cells {
		b.keys = append(b.keys, k)
		b.values = append(b.values, v)
	}
	return b
}

func (b *SparseBody) Axes() []AxisValues         { return b.axes }
func (b *SparseBody) AxisValueSets() []*ValueSet { return axisValueSets(b.axes) }
func (b *SparseBody) NullAxisFlags() []bool      { return nullAxisFlags(b.axes) }
func (b *SparseBody) CellCount() int             { return len(b.keys) }
func (b *SparseBody) kindName() string           { return "sparse" }

func (b *SparseBody) ValueMap() map[CellKey]Value {
	out := make(map[CellKey]Value, len(b.keys))
	for i, k := range b.keys {
		out[k] = b.values[i]
	}
	return out
}

// BodiesEqual reports cell-by-cell equality of two bodies, independent of
// storage variant.
func BodiesEqual(a, b Body) bool {
	am, bm := a.ValueMap(), b.ValueMap()
	if len(am) != len(bm) {
		return false
	}
	for k, av := range am {
		bv, ok := bm[k]
		if !ok || Compare(av, bv) != 0 {
			return false
		}
	}
	return true
}

type denseFloatWire struct {
	Values []float64    `json:"values"`
	Nulls  *NullMask    `json:"nulls"`
	Axes   []AxisValues `json:"axes"`
}

func (b *DenseFloatBody) MarshalJSON() ([]byte, error) {
	return json.Marshal(denseFloatWire{Values: b.values, Nulls: b.nulls, Axes: b.axes})
}

func (b *DenseFloatBody) UnmarshalJSON(data []byte) error {
	var w denseFloatWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Nulls == nil {
		w.Nulls = NewNullMask()
	}
	*b = DenseFloatBody{values: w.Values, nulls: w.Nulls, axes: w.Axes}
	return nil
}

type denseIntWire struct {
	Values []int64      `json:"values"`
	Nulls  *NullMask    `json:"nulls"`
	Axes   []AxisValues `json:"axes"`
}

func (b *DenseIntBody) MarshalJSON() ([]byte, error) {
	return json.Marshal(denseIntWire{Values: b.values, Nulls: b.nulls, Axes: b.axes})
}

func (b *DenseIntBody) UnmarshalJSON(data []byte) error {
	var w denseIntWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Nulls == nil {
		w.Nulls = NewNullMask()
	}
	*b = DenseIntBody{values: w.Values, nulls: w.Nulls, axes: w.Axes}
	return nil
}

type denseObjectWire struct {
	Values []Value      `json:"values"`
	Axes   []AxisValues `json:"axes"`
}

func (b *DenseObjectBody) MarshalJSON() ([]byte, error) {
	return json.Marshal(denseObjectWire{Values: b.values, Axes: b.axes})
}

func (b *DenseObjectBody) UnmarshalJSON(data []byte) error {
	var w denseObjectWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = DenseObjectBody{values: w.Values, axes: w.Axes}
	return nil
}

type sparseWire struct {
	Keys   []CellKey    `json:"keys"`
	Values []Value      `json:"cells"`
	Axes   []AxisValues `json:"axes"`
}

func (b *SparseBody) MarshalJSON() ([]byte, error) {
	return json.Marshal(sparseWire{Keys: b.keys, Values: b.values, Axes: b.axes})
}

func (b *SparseBody) UnmarshalJSON(data []byte) error {
	var w sparseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Keys) != len(w.Values) {
		return fmt.Errorf("segment: sparse body has %d keys but %d cells", len(w.Keys), len(w.Values))
	}
	*b = SparseBody{keys: w.Keys, values: w.Values, axes: w.Axes}
	return nil
}
