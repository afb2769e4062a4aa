// Package bitkey provides the dimensionality bitmaps used to tag segment
// headers. A BitKey identifies a subset of a star's columns; headers with
// equal bit keys cover the same set of axes.
package bitkey

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
)

// BitKey is a bitmap over a star's column ordinals. The zero value is not
// usable; construct with New or Of.
//
// BitKey values are treated as immutable once published. Union and
// Intersect return fresh keys.
type BitKey struct {
	bits *roaring.Bitmap
}

// New returns an empty BitKey.
func New() BitKey {
	return BitKey{bits: roaring.New()}
}

// Of returns a BitKey with the given bits set.
func Of(bits ...uint32) BitKey {
	return BitKey{bits: roaring.BitmapOf(bits...)}
}

// Set returns a copy of k with bit i set.
func (k BitKey) Set(i uint32) BitKey {
	c := k.bits.Clone()
	c.Add(i)
	return BitKey{bits: c}
}

// IsSet reports whether bit i is set.
func (k BitKey) IsSet(i uint32) bool { return k.bits.Contains(i) }

// Count returns the number of set bits.
func (k BitKey) Count() int { return int(k.bits.GetCardinality()) }

// Bits returns the set bits in ascending order.
func (k BitKey) Bits() []uint32 { return k.bits.ToArray() }

// Union returns k ∪ o.
func (k BitKey) Union(o BitKey) BitKey {
	c := k.bits.Clone()
	c.Or(o.bits)
	return BitKey{bits: c}
}

// Intersect returns k ∩ o.
func (k BitKey) Intersect(o BitKey) BitKey {
	c := k.bits.Clone()
	c.And(o.bits)
	return BitKey{bits: c}
}

// Equal reports whether k and o have exactly the same bits set.
func (k BitKey) Equal(o BitKey) bool { return k.bits.Equals(o.bits) }

// IsSuperSetOf reports whether every bit of o is set in k.
func (k BitKey) IsSuperSetOf(o BitKey) bool {
	c := o.bits.Clone()
	c.AndNot(k.bits)
	return c.IsEmpty()
}

// Key returns a stable string form of the bitmap, suitable as a map key.
func (k BitKey) Key() string {
	arr := k.bits.ToArray()
	buf := make([]byte, 4*len(arr))
	for i, b := range arr {
		binary.BigEndian.PutUint32(buf[4*i:], b)
	}
	return string(buf)
}

// Hash returns a stable 64-bit hash of the bitmap.
func (k BitKey) Hash() uint64 {
	return xxhash.Sum64String(k.Key())
}

// Clone returns a deep copy.
func (k BitKey) Clone() BitKey {
	return BitKey{bits: k.bits.Clone()}
}

// String renders the set bits, e.g. "{0,3,7}".
func (k BitKey) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, b := range k.bits.ToArray() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", b)
	}
	sb.WriteByte('}')
	return sb.String()
}

var (
	_ json.Marshaler   = BitKey{}
	_ json.Unmarshaler = (*BitKey)(nil)
)

// MarshalJSON encodes the key as a JSON array of set bits.
func (k BitKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.bits.ToArray())
}

// UnmarshalJSON decodes a JSON array of set bits.
func (k *BitKey) UnmarshalJSON(data []byte) error {
	var bits []uint32
	if err := json.Unmarshal(data, &bits); err != nil {
		return err
	}
	*k = Of(bits...)
	return nil
}
