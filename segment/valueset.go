package segment

import (
	"encoding/json"
	"sort"
)

// ValueSet is an immutable sorted set of Values backed by an array.
//
// The backing array is sorted by Compare, which places NULL at the tail.
// Callers must treat the slice returned by Values as read-only.
type ValueSet struct {
	values []Value
}

// NewValueSet builds a ValueSet from the given values, sorting and
// deduplicating them.
func NewValueSet(values ...Value) *ValueSet {
	vs := make([]Value, len(values))
	copy(vs, values)
	sort.Slice(vs, func(i, j int) bool { return Compare(vs[i], vs[j]) < 0 })
	out := vs[:0]
	for i, v := range vs {
		if i == 0 || Compare(vs[i-1], v) != 0 {
			out = append(out, v)
		}
	}
	return &ValueSet{values: out}
}

// newSortedValueSet wraps an already sorted, deduplicated slice without
// copying. The caller must not modify the slice afterwards.
func newSortedValueSet(values []Value) *ValueSet {
	return &ValueSet{values: values}
}

// Len returns the number of values in the set.
func (s *ValueSet) Len() int { return len(s.values) }

// Values returns the sorted backing slice. Read-only.
func (s *ValueSet) Values() []Value { return s.values }

// At returns the i-th value in sort order.
func (s *ValueSet) At(i int) Value { return s.values[i] }

// Contains reports whether v is in the set, by binary search.
func (s *ValueSet) Contains(v Value) bool {
	return s.search(v) >= 0
}

// search returns the index of v, or a negative number if absent.
func (s *ValueSet) search(v Value) int {
	i := sort.Search(len(s.values), func(i int) bool {
		return Compare(s.values[i], v) >= 0
	})
	if i < len(s.values) && Compare(s.values[i], v) == 0 {
		return i
	}
	return -(i + 1)
}

// IndexOf returns the ordinal of v in the set, or -1 if absent.
func (s *ValueSet) IndexOf(v Value) int {
	if i := s.search(v); i >= 0 {
		return i
	}
	return -1
}

// Union returns a set containing every value of s and o.
func (s *ValueSet) Union(o *ValueSet) *ValueSet {
	merged := make([]Value, 0, len(s.values)+len(o.values))
	i, j := 0, 0
	for i < len(s.values) && j < len(o.values) {
		switch c := Compare(s.values[i], o.values[j]); {
		case c < 0:
			merged = append(merged, s.values[i])
			i++
		case c > 0:
			merged = append(merged, o.values[j])
			j++
		default:
			merged = append(merged, s.values[i])
			i++
			j++
		}
	}
	merged = append(merged, s.values[i:]...)
	merged = append(merged, o.values[j:]...)
	return newSortedValueSet(merged)
}

// Intersect returns a set containing the values present in both s and o.
func (s *ValueSet) Intersect(o *ValueSet) *ValueSet {
	var merged []Value
	i, j := 0, 0
	for i < len(s.values) && j < len(o.values) {
		switch c := Compare(s.values[i], o.values[j]); {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			merged = append(merged, s.values[i])
			i++
			j++
		}
	}
	return newSortedValueSet(merged)
}

// Equal reports element-wise equality.
func (s *ValueSet) Equal(o *ValueSet) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.values) != len(o.values) {
		return false
	}
	for i := range s.values {
		if Compare(s.values[i], o.values[i]) != 0 {
			return false
		}
	}
	return true
}

var (
	_ json.Marshaler   = (*ValueSet)(nil)
	_ json.Unmarshaler = (*ValueSet)(nil)
)

// MarshalJSON encodes the set as a sorted JSON array.
func (s *ValueSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.values)
}

// UnmarshalJSON decodes a JSON array. The input is re-sorted so that a
// hand-written fixture cannot violate the ordering invariant.
func (s *ValueSet) UnmarshalJSON(data []byte) error {
	var vs []Value
	if err := json.Unmarshal(data, &vs); err != nil {
		return err
	}
	*s = *NewValueSet(vs...)
	return nil
}
