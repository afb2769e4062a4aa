package segment

import (
	"fmt"

	"github.com/hupe1980/segcache/bitkey"
)

// Segment is the live counterpart of a header: a rectangle of cells for one
// measure, bound to a star by name, carrying the column predicates the
// originating query asked for. Segments are immutable; data arrives
// separately as a WithData.
type Segment struct {
	Provenance         Provenance
	BitKey             bitkey.BitKey
	Predicates         []Column // one per set bit, in bit order
	CompoundPredicates []string
	ExcludedRegions    []Column
}

// NewSegment creates a live segment.
func NewSegment(
	prov Provenance,
	bits bitkey.BitKey,
	predicates []Column,
	compoundPredicates []string,
	excludedRegions []Column,
) *Segment {
	return &Segment{
		Provenance:         prov,
		BitKey:             bits,
		Predicates:         predicates,
		CompoundPredicates: compoundPredicates,
		ExcludedRegions:    excludedRegions,
	}
}

// Header derives the content-addressed header describing this segment.
func (s *Segment) Header() *Header {
	cols := make([]Column, len(s.Predicates))
	copy(cols, s.Predicates)
	return NewHeader(s.Provenance, cols, s.CompoundPredicates, s.BitKey, s.ExcludedRegions)
}

// SegmentForHeader reconstructs a live segment from a header. The inverse
// of Segment.Header; predicates are taken verbatim from the constrained
// columns.
func SegmentForHeader(h *Header) *Segment {
	preds := make([]Column, len(h.ConstrainedColumns()))
	copy(preds, h.ConstrainedColumns())
	return NewSegment(h.Provenance(), h.BitKey(), preds, h.CompoundPredicates(), h.ExcludedRegions())
}

// WithData is a segment whose cells have been materialized: axes mapping
// coordinate values to ordinals, and a dataset answering cell lookups.
type WithData struct {
	*Segment
	Axes    []*Axis
	Dataset Dataset
}

// CellValue returns the cell at the given coordinate values, or false when
// the cell is NULL or out of range.
func (s *WithData) CellValue(coords []Value) (Value, bool) {
	if len(coords) != len(s.Axes) {
		return Null, false
	}
	ords := make([]int, len(coords))
	for i, c := range coords {
		o := s.Axes[i].Offset(c)
		if o < 0 {
			return Null, false
		}
		ords[i] = o
	}
	return s.Dataset.CellValue(ords)
}

// AddData combines a segment and a body into a WithData, building
// one axis per predicate from the body's observed coordinates.
func AddData(s *Segment, b Body) (*WithData, error) {
	axes := b.Axes()
	if len(axes) != len(s.Predicates) {
		return nil, fmt.Errorf("segment: body has %d axes, segment has %d predicates",
			len(axes), len(s.Predicates))
	}
	built := make([]*Axis, len(axes))
	for i, a := range axes {
		built[i] = NewAxis(s.Predicates[i], a.Values, a.HasNull)
	}
	ds, err := newDataset(b)
	if err != nil {
		return nil, err
	}
	return &WithData{Segment: s, Axes: built, Dataset: ds}, nil
}

// Dataset is the in-memory mirror of a body, answering cell lookups by
// axis ordinals.
type Dataset interface {
	// CellValue returns the cell at the given ordinals. The second result
	// is false when the cell is NULL.
	CellValue(ords []int) (Value, bool)
}

func newDataset(b Body) (Dataset, error) {
	switch t := b.(type) {
	case *DenseFloatBody:
		mult, _ := axisMultipliers(t.axes)
		return &denseFloatDataset{values: t.values, nulls: t.nulls, mult: mult}, nil
	case *DenseIntBody:
		mult, _ := axisMultipliers(t.axes)
		return &denseIntDataset{values: t.values, nulls: t.nulls, mult: mult}, nil
	case *DenseObjectBody:
		mult, _ := axisMultipliers(t.axes)
		return &denseObjectDataset{values: t.values, mult: mult}, nil
	case *SparseBody:
		return &sparseDataset{cells: t.ValueMap()}, nil
	default:
		return nil, fmt.Errorf("segment: unknown body type %T", b)
	}
}

type denseFloatDataset struct {
	values []float64
	nulls  *NullMask
	mult   []int
}

func (d *denseFloatDataset) CellValue(ords []int) (Value, bool) {
	off := offsetOf(NewCellKey(ords), d.mult)
	if off < 0 || off >= len(d.values) || d.nulls.Contains(off) {
		return Null, false
	}
	return FloatValue(d.values[off]), true
}

type denseIntDataset struct {
	values []int64
	nulls  *NullMask
	mult   []int
}

func (d *denseIntDataset) CellValue(ords []int) (Value, bool) {
	off := offsetOf(NewCellKey(ords), d.mult)
	if off < 0 || off >= len(d.values) || d.nulls.Contains(off) {
		return Null, false
	}
	return IntValue(d.values[off]), true
}

type denseObjectDataset struct {
	values []Value
	mult   []int
}

func (d *denseObjectDataset) CellValue(ords []int) (Value, bool) {
	off := offsetOf(NewCellKey(ords), d.mult)
	if off < 0 || off >= len(d.values) || d.values[off].IsNull() {
		return Null, false
	}
	return d.values[off], true
}

type sparseDataset struct {
	cells map[CellKey]Value
}

func (d *sparseDataset) CellValue(ords []int) (Value, bool) {
	v, ok := d.cells[NewCellKey(ords)]
	if !ok {
		return Null, false
	}
	return v, true
}
