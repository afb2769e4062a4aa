// Package index provides the in-memory segment cache index: the data
// structure that knows which segments contain which cells, across every
// dimensionality of a fact table.
//
// The index is single-writer. It records the goroutine that created it and
// every operation asserts it is called from that goroutine; in practice the
// owner is the cache manager's event loop.
package index

import (
	"fmt"
	"io"
	"math/rand"
	"slices"

	"github.com/hupe1980/segcache/bitkey"
	"github.com/hupe1980/segcache/poset"
	"github.com/hupe1980/segcache/segment"
)

// Request describes one cell lookup: the provenance and dimensionality the
// caller wants, the coordinate of the cell on each constrained column, and
// the compound predicates the originating query carried. A NULL coordinate
// is represented by segment.Null.
type Request struct {
	Provenance         segment.Provenance
	BitKey             bitkey.BitKey
	Coords             map[string]segment.Value
	CompoundPredicates []string
}

type bitkeyKey struct {
	prov segment.Provenance
	bits string
}

type factInfo struct {
	headers []*segment.Header
	bitkeys *poset.Poset[bitkey.BitKey]
}

func newFactInfo() *factInfo {
	return &factInfo{
		bitkeys: poset.New(
			bitkey.BitKey.Key,
			func(lesser, greater bitkey.BitKey) bool { return greater.IsSuperSetOf(lesser) },
			bitkey.BitKey.Count,
		),
	}
}

// Option configures an Index.
type Option func(*Index)

// WithMaxHeaders bounds the number of headers held. When the bound is
// reached, an entry chosen by the eviction PRNG is removed before the new
// header is admitted. Zero means unbounded.
func WithMaxHeaders(n int) Option {
	return func(ix *Index) { ix.maxHeaders = n }
}

// WithEvictionSeed fixes the eviction PRNG seed. Eviction is random but
// deterministic for a given seed and operation sequence.
func WithEvictionSeed(seed int64) Option {
	return func(ix *Index) { ix.rng = rand.New(rand.NewSource(seed)) }
}

// Index is the in-memory map from header key material to segment headers.
// It answers three query families: exact location, region intersection for
// invalidation, and rollup candidate discovery across dimensionalities.
type Index struct {
	owner      uint64
	bitkeyMap  map[bitkeyKey][]*segment.Header
	factMap    map[segment.Provenance]*factInfo
	byID       map[string]*segment.Header
	entries    []*segment.Header // insertion order; eviction domain
	maxHeaders int
	rng        *rand.Rand
}

// New creates an Index owned by the calling goroutine.
func New(opts ...Option) *Index {
	ix := &Index{
		owner:     goroutineID(),
		bitkeyMap: make(map[bitkeyKey][]*segment.Header),
		factMap:   make(map[segment.Provenance]*factInfo),
		byID:      make(map[string]*segment.Header),
		rng:       rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *Index) checkOwner() error {
	if g := goroutineID(); g != ix.owner {
		return invariantf("index owned by goroutine %d, called from %d", ix.owner, g)
	}
	return nil
}

func headerBitkeyKey(h *segment.Header) bitkeyKey {
	return bitkeyKey{prov: h.Provenance(), bits: h.BitKey().Key()}
}

// Len returns the number of headers held.
func (ix *Index) Len() int { return len(ix.entries) }

// Contains reports whether a header with h's unique ID is held.
func (ix *Index) Contains(h *segment.Header) (bool, error) {
	if err := ix.checkOwner(); err != nil {
		return false, err
	}
	_, ok := ix.byID[h.UniqueID()]
	return ok, nil
}

// Headers returns the held headers in insertion order. Read-only.
func (ix *Index) Headers() ([]*segment.Header, error) {
	if err := ix.checkOwner(); err != nil {
		return nil, err
	}
	return ix.entries, nil
}

// Add inserts a header. Returns false when a header with the same unique
// ID is already held. When the index is bounded and full, one entry is
// evicted first.
func (ix *Index) Add(h *segment.Header) (bool, error) {
	if err := ix.checkOwner(); err != nil {
		return false, err
	}
	uid := h.UniqueID()
	if _, ok := ix.byID[uid]; ok {
		return false, nil
	}
	if ix.maxHeaders > 0 && len(ix.entries) >= ix.maxHeaders {
		victim := ix.entries[ix.rng.Intn(len(ix.entries))]
		ix.remove(victim)
	}

	bk := headerBitkeyKey(h)
	ix.bitkeyMap[bk] = append(ix.bitkeyMap[bk], h)

	fi := ix.factMap[h.Provenance()]
	if fi == nil {
		fi = newFactInfo()
		ix.factMap[h.Provenance()] = fi
	}
	fi.headers = append(fi.headers, h)
	fi.bitkeys.Add(h.BitKey())

	ix.byID[uid] = h
	ix.entries = append(ix.entries, h)
	return true, nil
}

// Remove deletes the header with h's unique ID, if held.
func (ix *Index) Remove(h *segment.Header) error {
	if err := ix.checkOwner(); err != nil {
		return err
	}
	ix.remove(h)
	return nil
}

func (ix *Index) remove(h *segment.Header) {
	uid := h.UniqueID()
	held, ok := ix.byID[uid]
	if !ok {
		return
	}
	delete(ix.byID, uid)
	ix.entries = slices.DeleteFunc(ix.entries, func(x *segment.Header) bool { return x == held })

	fi := ix.factMap[h.Provenance()]
	if fi != nil {
		fi.headers = slices.DeleteFunc(fi.headers, func(x *segment.Header) bool { return x == held })
		if len(fi.headers) == 0 {
			delete(ix.factMap, h.Provenance())
			fi = nil
		}
	}

	bk := headerBitkeyKey(h)
	list := slices.DeleteFunc(ix.bitkeyMap[bk], func(x *segment.Header) bool { return x == held })
	if len(list) == 0 {
		delete(ix.bitkeyMap, bk)
		if fi != nil {
			fi.bitkeys.Remove(h.BitKey())
		}
	} else {
		ix.bitkeyMap[bk] = list
	}
}

// Locate returns every header of exactly the requested dimensionality whose
// predicates admit the request's coordinates and whose compound predicates
// equal the request's element-wise.
func (ix *Index) Locate(req Request) ([]*segment.Header, error) {
	if err := ix.checkOwner(); err != nil {
		return nil, err
	}
	headers := ix.bitkeyMap[bitkeyKey{prov: req.Provenance, bits: req.BitKey.Key()}]
	var out []*segment.Header
	for _, h := range headers {
		ok, err := matches(h, req)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func matches(h *segment.Header, req Request) (bool, error) {
	if !slices.Equal(h.CompoundPredicates(), req.CompoundPredicates) {
		return false, nil
	}
	for expr, value := range req.Coords {
		// A coordinate inside an excluded region disqualifies the header;
		// a wildcard exclusion excludes every value.
		if excl, ok := h.ExcludedRegion(expr); ok {
			if excl.IsWildcard() || excl.Values().Contains(value) {
				return false, nil
			}
		}
		col, ok := h.ConstrainedColumn(expr)
		if !ok {
			return false, invariantf("segment axis for column %q not found", expr)
		}
		if !col.IsWildcard() && !col.Values().Contains(value) {
			return false, nil
		}
	}
	return true, nil
}

// IntersectRegion returns every header with the given provenance whose
// covered cells overlap the region: on every region column the header also
// constrains, the two share at least one value. A region column the header
// does not constrain implicitly intersects, which lets global flushes work;
// a wildcard on either side also intersects on that column.
func (ix *Index) IntersectRegion(prov segment.Provenance, region []segment.Column) ([]*segment.Header, error) {
	if err := ix.checkOwner(); err != nil {
		return nil, err
	}
	fi := ix.factMap[prov]
	if fi == nil {
		return nil, nil
	}
	var out []*segment.Header
	for _, h := range fi.headers {
		if intersects(h, region) {
			out = append(out, h)
		}
	}
	return out, nil
}

func intersects(h *segment.Header, region []segment.Column) bool {
	if len(region) == 0 {
		return true
	}
	for _, rc := range region {
		hc, ok := h.ConstrainedColumn(rc.Expression())
		if !ok {
			// The header does not constrain this column, so the region
			// covers it entirely.
			continue
		}
		if rc.IsWildcard() || hc.IsWildcard() {
			continue
		}
		shared := false
		for _, v := range rc.Values().Values() {
			if hc.Values().Contains(v) {
				shared = true
				break
			}
		}
		if !shared {
			return false
		}
	}
	return true
}

// FindRollupCandidates returns groups of headers from which the requested
// cell can be produced by rolling up a higher dimensionality. Groups are
// discovered walking ancestor dimensionalities with fewer extra bits
// first, since those cover fewer cells. Each returned group is currently a
// single header: a header qualifies alone when every projected-away column
// is wildcarded. Headers that would need to be combined with siblings to
// cover a constrained projected column are skipped.
func (ix *Index) FindRollupCandidates(req Request) ([][]*segment.Header, error) {
	if err := ix.checkOwner(); err != nil {
		return nil, err
	}
	fi := ix.factMap[req.Provenance]
	if fi == nil {
		return nil, nil
	}

	var groups [][]*segment.Header
	for _, bits := range fi.bitkeys.Ancestors(req.BitKey) {
		headers := ix.bitkeyMap[bitkeyKey{prov: req.Provenance, bits: bits.Key()}]
	headerLoop:
		for _, h := range headers {
			nonWildcard := 0
			for _, col := range h.ConstrainedColumns() {
				if value, kept := req.Coords[col.Expression()]; kept {
					// Kept column: the requested coordinate must be in range.
					if !col.IsWildcard() && !col.Values().Contains(value) {
						continue headerLoop
					}
				} else if !col.IsWildcard() {
					// Aggregated away but constrained: this header covers
					// only part of the projected axis.
					nonWildcard++
				}
			}
			if nonWildcard == 0 {
				groups = append(groups, []*segment.Header{h})
			}
			// TODO: combine partial matches that jointly cover the
			// projected axes.
		}
	}
	return groups, nil
}

// CacheState writes a diagnostic dump of every held header.
func (ix *Index) CacheState(w io.Writer) error {
	if err := ix.checkOwner(); err != nil {
		return err
	}
	for _, h := range ix.entries {
		if _, err := fmt.Fprintln(w, h.Description()); err != nil {
			return err
		}
	}
	return nil
}
