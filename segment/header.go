package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/segcache/bitkey"
)

// Provenance is the identity scope of a segment: schema, cube, measure and
// fact table. Headers with different provenance never match each other.
// It is comparable and used directly as a map key by the cache index.
type Provenance struct {
	SchemaName     string
	SchemaChecksum string // opaque digest of the schema definition
	CubeName       string
	MeasureName    string
	FactTableName  string
}

// Header is the immutable, content-addressed identity of a segment.
//
// Two headers are interchangeable, in and across processes, exactly when
// their UniqueIDs are equal. The unique ID is a SHA-256 digest over the
// schema name and checksum, the cube and measure names, the constrained
// columns in order (expression plus the textual form of every value) and
// the compound predicates. The fact table name is not part of the digest.
type Header struct {
	provenance         Provenance
	constrainedColumns []Column
	compoundPredicates []string
	bitKey             bitkey.BitKey
	excludedRegions    []Column

	hashCode uint64
	uid      atomic.Pointer[string]
}

// NewHeader creates a Header. The constrained columns must be ordered
// consistently with the natural order of the bit key's set bits; the caller
// owns that alignment. The slices are not copied; treat them as handed over.
func NewHeader(
	prov Provenance,
	constrainedColumns []Column,
	compoundPredicates []string,
	bits bitkey.BitKey,
	excludedRegions []Column,
) *Header {
	h := &Header{
		provenance:         prov,
		constrainedColumns: constrainedColumns,
		compoundPredicates: compoundPredicates,
		bitKey:             bits,
		excludedRegions:    excludedRegions,
	}
	h.hashCode = h.computeHashCode()
	return h
}

func (h *Header) computeHashCode() uint64 {
	d := xxhash.New()
	for _, s := range []string{
		h.provenance.SchemaName, h.provenance.SchemaChecksum,
		h.provenance.CubeName, h.provenance.MeasureName,
		h.provenance.FactTableName,
	} {
		_, _ = d.WriteString(s)
		_, _ = d.WriteString("\x00")
	}
	for _, c := range h.constrainedColumns {
		var b [8]byte
		for i, v := 0, c.Hash(); i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		_, _ = d.Write(b[:])
	}
	for _, p := range h.compoundPredicates {
		_, _ = d.WriteString(p)
		_, _ = d.WriteString("\x00")
	}
	return d.Sum64()
}

// Provenance returns the identity scope of the header.
func (h *Header) Provenance() Provenance { return h.provenance }

// SchemaName returns the schema name.
func (h *Header) SchemaName() string { return h.provenance.SchemaName }

// CubeName returns the cube name.
func (h *Header) CubeName() string { return h.provenance.CubeName }

// MeasureName returns the measure name.
func (h *Header) MeasureName() string { return h.provenance.MeasureName }

// FactTableName returns the fact table alias.
func (h *Header) FactTableName() string { return h.provenance.FactTableName }

// BitKey returns the dimensionality bitmap.
func (h *Header) BitKey() bitkey.BitKey { return h.bitKey }

// Arity returns the number of constrained columns.
func (h *Header) Arity() int { return len(h.constrainedColumns) }

// ConstrainedColumns returns the ordered constrained columns. Read-only.
func (h *Header) ConstrainedColumns() []Column { return h.constrainedColumns }

// CompoundPredicates returns the compound predicate texts. Read-only.
func (h *Header) CompoundPredicates() []string { return h.compoundPredicates }

// ExcludedRegions returns the regions punched out by earlier flushes.
func (h *Header) ExcludedRegions() []Column { return h.excludedRegions }

// ConstrainedColumn returns the constrained column for expr, if present.
// Arity is small, so a linear scan is fine.
func (h *Header) ConstrainedColumn(expr string) (Column, bool) {
	for _, c := range h.constrainedColumns {
		if c.Expression() == expr {
			return c, true
		}
	}
	return Column{}, false
}

// ExcludedRegion returns the excluded region for expr, if present.
func (h *Header) ExcludedRegion(expr string) (Column, bool) {
	for _, c := range h.excludedRegions {
		if c.Expression() == expr {
			return c, true
		}
	}
	return Column{}, false
}

// UniqueID returns the content-addressed identity of the header. Computed
// on first use, memoized afterwards. Concurrent first calls may compute the
// digest twice; the result is identical either way.
func (h *Header) UniqueID() string {
	if p := h.uid.Load(); p != nil {
		return *p
	}
	d := sha256.New()
	_, _ = d.Write([]byte(h.provenance.SchemaName))
	_, _ = d.Write([]byte(h.provenance.SchemaChecksum))
	_, _ = d.Write([]byte(h.provenance.CubeName))
	_, _ = d.Write([]byte(h.provenance.MeasureName))
	for _, c := range h.constrainedColumns {
		_, _ = d.Write([]byte(c.Expression()))
		if vs := c.Values(); vs != nil {
			for _, v := range vs.Values() {
				_, _ = d.Write([]byte(v.String()))
			}
		}
	}
	for _, p := range h.compoundPredicates {
		_, _ = d.Write([]byte(p))
	}
	uid := hex.EncodeToString(d.Sum(nil))
	h.uid.Store(&uid)
	return uid
}

// HashCode returns the precomputed structural hash.
func (h *Header) HashCode() uint64 { return h.hashCode }

// Equal reports identity equality: equal UniqueIDs.
func (h *Header) Equal(o *Header) bool {
	if h == nil || o == nil {
		return h == o
	}
	return h.UniqueID() == o.UniqueID()
}

// Clone returns a copy of the header with some constrained columns
// replaced or added, matched by expression. Columns not overridden are
// preserved in their original order; overrides for new expressions are
// appended in the order given.
func (h *Header) Clone(overrides []Column) *Header {
	cols := make([]Column, len(h.constrainedColumns))
	copy(cols, h.constrainedColumns)
	for _, ov := range overrides {
		replaced := false
		for i, c := range cols {
			if c.Expression() == ov.Expression() {
				cols[i] = ov
				replaced = true
				break
			}
		}
		if !replaced {
			cols = append(cols, ov)
		}
	}
	return NewHeader(h.provenance, cols, h.compoundPredicates, h.bitKey, h.excludedRegions)
}

// IsSubset reports whether o shares this header's provenance and
// dimensionality. Callers combine this with value-range checks.
func (h *Header) IsSubset(o *Header) bool {
	return h.provenance == o.provenance && h.bitKey.Equal(o.bitKey)
}

// Description renders a human-readable dump of the header for diagnostics.
func (h *Header) Description() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "segment header\n  schema: %s\n  cube: %s\n  measure: %s\n  fact: %s\n  axes:",
		h.provenance.SchemaName, h.provenance.CubeName,
		h.provenance.MeasureName, h.provenance.FactTableName)
	for _, c := range h.constrainedColumns {
		if c.IsWildcard() {
			fmt.Fprintf(&sb, "\n    %s=*", c.Expression())
			continue
		}
		parts := make([]string, 0, c.Values().Len())
		for _, v := range c.Values().Values() {
			parts = append(parts, v.String())
		}
		fmt.Fprintf(&sb, "\n    %s=(%s)", c.Expression(), strings.Join(parts, ","))
	}
	for _, p := range h.compoundPredicates {
		fmt.Fprintf(&sb, "\n  predicate: %s", p)
	}
	fmt.Fprintf(&sb, "\n  id: %s\n", h.UniqueID())
	return sb.String()
}

type headerWire struct {
	SchemaName         string        `json:"schema"`
	SchemaChecksum     []byte        `json:"checksum"`
	CubeName           string        `json:"cube"`
	MeasureName        string        `json:"measure"`
	FactTableName      string        `json:"fact"`
	ConstrainedColumns []Column      `json:"columns"`
	CompoundPredicates []string      `json:"compound,omitempty"`
	BitKey             bitkey.BitKey `json:"bits"`
	ExcludedRegions    []Column      `json:"excluded,omitempty"`
}

var (
	_ json.Marshaler   = (*Header)(nil)
	_ json.Unmarshaler = (*Header)(nil)
)

// MarshalJSON encodes the header's primitive fields only; the unique ID is
// derived, never stored.
func (h *Header) MarshalJSON() ([]byte, error) {
	return json.Marshal(headerWire{
		SchemaName:         h.provenance.SchemaName,
		SchemaChecksum:     []byte(h.provenance.SchemaChecksum),
		CubeName:           h.provenance.CubeName,
		MeasureName:        h.provenance.MeasureName,
		FactTableName:      h.provenance.FactTableName,
		ConstrainedColumns: h.constrainedColumns,
		CompoundPredicates: h.compoundPredicates,
		BitKey:             h.bitKey,
		ExcludedRegions:    h.excludedRegions,
	})
}

// UnmarshalJSON decodes a header and re-establishes the derived state.
func (h *Header) UnmarshalJSON(data []byte) error {
	var w headerWire
	w.BitKey = bitkey.New()
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	h.provenance = Provenance{
		SchemaName:     w.SchemaName,
		SchemaChecksum: string(w.SchemaChecksum),
		CubeName:       w.CubeName,
		MeasureName:    w.MeasureName,
		FactTableName:  w.FactTableName,
	}
	h.constrainedColumns = w.ConstrainedColumns
	h.compoundPredicates = w.CompoundPredicates
	h.bitKey = w.BitKey
	h.excludedRegions = w.ExcludedRegions
	h.hashCode = h.computeHashCode()
	h.uid.Store(nil)
	return nil
}
