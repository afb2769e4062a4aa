package segment

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// Column is a constrained column: the pair of a column expression and the
// sorted set of values the segment covers on that column. A nil value set
// is the wildcard, meaning the column is not constrained.
//
// Columns are immutable. They appear both in segment headers (as the
// covered range) and in live segments (as the requested predicate).
type Column struct {
	expression string
	values     *ValueSet
	hash       uint64
}

// NewColumn creates a Column. values == nil means wildcard. When building
// from raw values use NewColumnOf, which sorts and deduplicates.
func NewColumn(expression string, values *ValueSet) Column {
	c := Column{expression: expression, values: values}
	c.hash = c.computeHash()
	return c
}

// NewColumnOf creates a Column constrained to the given raw values.
func NewColumnOf(expression string, values ...Value) Column {
	return NewColumn(expression, NewValueSet(values...))
}

// Wildcard creates an unconstrained Column.
func Wildcard(expression string) Column {
	return NewColumn(expression, nil)
}

func (c Column) computeHash() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(c.expression)
	if c.values != nil {
		for _, v := range c.values.Values() {
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(v.String())
		}
	} else {
		_, _ = d.WriteString("\x00*")
	}
	return d.Sum64()
}

// Expression returns the column expression.
func (c Column) Expression() string { return c.expression }

// Values returns the constrained value set, or nil for wildcard.
func (c Column) Values() *ValueSet { return c.values }

// IsWildcard reports whether the column is unconstrained.
func (c Column) IsWildcard() bool { return c.values == nil }

// Hash returns the precomputed structural hash.
func (c Column) Hash() uint64 { return c.hash }

// Contains reports whether the column covers v. A wildcard covers
// every value.
func (c Column) Contains(v Value) bool {
	return c.values == nil || c.values.Contains(v)
}

// Merge combines two constraints on the same column expression into a
// superset of both. If either side is wildcard the result is wildcard.
// Merge panics if the expressions differ; callers align columns by
// expression first.
func (c Column) Merge(o Column) Column {
	if c.expression != o.expression {
		panic("segment: merge of columns with different expressions")
	}
	if c.values == nil || o.values == nil {
		return Wildcard(c.expression)
	}
	return NewColumn(c.expression, c.values.Union(o.values))
}

// Equal reports structural equality: same expression and element-wise
// equal value sets (or both wildcard).
func (c Column) Equal(o Column) bool {
	if c.expression != o.expression {
		return false
	}
	if c.values == nil || o.values == nil {
		return c.values == nil && o.values == nil
	}
	return c.values.Equal(o.values)
}

type columnWire struct {
	Expression string    `json:"expr"`
	Values     *ValueSet `json:"values,omitempty"`
}

var (
	_ json.Marshaler   = Column{}
	_ json.Unmarshaler = (*Column)(nil)
)

// MarshalJSON encodes the column; a wildcard omits the values field.
func (c Column) MarshalJSON() ([]byte, error) {
	return json.Marshal(columnWire{Expression: c.expression, Values: c.values})
}

// UnmarshalJSON decodes a column and recomputes its hash.
func (c *Column) UnmarshalJSON(data []byte) error {
	var w columnWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = NewColumn(w.Expression, w.Values)
	return nil
}
