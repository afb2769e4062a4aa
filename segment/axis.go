package segment

// Axis is the materialized form of one segment dimension: the sorted
// coordinate keys actually present, a key-to-ordinal map, and the predicate
// that selected them. When the axis has a NULL coordinate it occupies the
// last ordinal.
//
// Axes are populated on the cache manager's goroutine and read-only
// afterwards.
type Axis struct {
	predicate Column
	keys      []Value
	offsets   map[Value]int
}

// NewAxis materializes an axis from the predicate that requested it and the
// coordinate values a body observed. A key that passes the predicate but is
// not in keySet denotes a cell range that is entirely NULL.
func NewAxis(predicate Column, keySet *ValueSet, hasNull bool) *Axis {
	n := keySet.Len()
	if hasNull {
		n++
	}
	keys := make([]Value, 0, n)
	keys = append(keys, keySet.Values()...)
	if hasNull {
		keys = append(keys, Null)
	}
	offsets := make(map[Value]int, len(keys))
	for i, k := range keys {
		offsets[k] = i
	}
	return &Axis{predicate: predicate, keys: keys, offsets: offsets}
}

// Predicate returns the predicate that selected this axis.
func (a *Axis) Predicate() Column { return a.predicate }

// Keys returns the coordinate keys in ordinal order. Read-only.
func (a *Axis) Keys() []Value { return a.keys }

// Offset returns the ordinal of key, or -1 if the axis does not carry it.
func (a *Axis) Offset(key Value) int {
	if o, ok := a.offsets[key]; ok {
		return o
	}
	return -1
}

// Contains reports whether the axis would cover key, i.e. whether the
// predicate admits it. A key covered but absent from Keys is all-NULL.
func (a *Axis) Contains(key Value) bool {
	return a.predicate.Contains(key)
}

// MatchCount returns how many of the axis keys pass the given predicate.
func (a *Axis) MatchCount(pred Column) int {
	n := 0
	for _, k := range a.keys {
		if pred.Contains(k) {
			n++
		}
	}
	return n
}
