package segment

import (
	"encoding/binary"
	"encoding/json"
)

// CellKey identifies a cell position inside a segment as an array of axis
// ordinals. It is immutable, comparable (usable as a map key) and its
// representation is stable across processes.
//
// Rollup touches cell keys in its innermost loop, so the ordinals are
// packed into a single string; the Go runtime hashes that directly.
type CellKey struct {
	packed string
}

// NewCellKey builds a cell key from axis ordinals.
func NewCellKey(ordinals []int) CellKey {
	buf := make([]byte, 4*len(ordinals))
	for i, o := range ordinals {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(o))
	}
	return CellKey{packed: string(buf)}
}

// Ordinals returns a fresh copy of the ordinal array.
func (k CellKey) Ordinals() []int {
	ords := make([]int, len(k.packed)/4)
	for i := range ords {
		ords[i] = int(binary.BigEndian.Uint32([]byte(k.packed[4*i : 4*i+4])))
	}
	return ords
}

// Ordinal returns the ordinal on axis i.
func (k CellKey) Ordinal(i int) int {
	return int(binary.BigEndian.Uint32([]byte(k.packed[4*i : 4*i+4])))
}

// Arity returns the number of axes.
func (k CellKey) Arity() int { return len(k.packed) / 4 }

var (
	_ json.Marshaler   = CellKey{}
	_ json.Unmarshaler = (*CellKey)(nil)
)

// MarshalJSON encodes the key as a JSON array of ordinals.
func (k CellKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Ordinals())
}

// UnmarshalJSON decodes a JSON array of ordinals.
func (k *CellKey) UnmarshalJSON(data []byte) error {
	var ords []int
	if err := json.Unmarshal(data, &ords); err != nil {
		return err
	}
	*k = NewCellKey(ords)
	return nil
}
