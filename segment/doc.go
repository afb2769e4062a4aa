// Package segment defines the data model of the segment cache: the scalar
// value domain, constrained columns, content-addressed headers, the four
// body storage variants, materialized axes, live segments with datasets,
// and the rollup builder that reduces a set of segments to a lower
// dimensionality.
//
// Headers and bodies are immutable once published and may be shared freely
// across goroutines.
package segment
