// Package normalize canonicalizes article strings so that rows from the
// different upstream reports compare equal. The upstream ERP lets operators
// type articles by hand, so the same article arrives with en-dashes,
// non-breaking spaces or stray invisible characters depending on the report.
package normalize

import (
	"container/list"
	"strings"
	"sync"
)

// DefaultCapacity is the bound of the package-level memo cache.
const DefaultCapacity = 10000

// Stats is a snapshot of the memo cache counters.
type Stats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
}

// Normalizer memoizes article canonicalization behind a bounded LRU cache.
// Safe for concurrent use.
type Normalizer struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
	hits     uint64
	misses   uint64
}

type cacheEntry struct {
	raw       string
	canonical string
}

// New creates a Normalizer with the given cache capacity.
// Capacities below 1 fall back to DefaultCapacity.
func New(capacity int) *Normalizer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Normalizer{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// std is the process-wide normalizer shared by all callers.
var std = New(DefaultCapacity)

// Normalize canonicalizes an article preserving case.
func Normalize(s string) string { return std.Normalize(s) }

// NormalizeFold canonicalizes an article and lowercases it for
// case-insensitive matching.
func NormalizeFold(s string) string { return std.NormalizeFold(s) }

// CacheStats returns the counters of the process-wide cache.
func CacheStats() Stats { return std.Stats() }

// Normalize canonicalizes an article preserving case. Results are memoized.
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if el, ok := n.entries[s]; ok {
		n.hits++
		n.order.MoveToFront(el)
		return el.Value.(*cacheEntry).canonical
	}
	n.misses++

	canonical := canonicalize(s)
	el := n.order.PushFront(&cacheEntry{raw: s, canonical: canonical})
	n.entries[s] = el
	if n.order.Len() > n.capacity {
		oldest := n.order.Back()
		n.order.Remove(oldest)
		delete(n.entries, oldest.Value.(*cacheEntry).raw)
	}
	return canonical
}

// NormalizeFold returns the lowercase canonical form.
func (n *Normalizer) NormalizeFold(s string) string {
	return strings.ToLower(n.Normalize(s))
}

// Stats returns a snapshot of the cache counters.
func (n *Normalizer) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{
		Hits:     n.hits,
		Misses:   n.misses,
		Size:     n.order.Len(),
		Capacity: n.capacity,
	}
}

// Clear empties the cache and resets the counters.
func (n *Normalizer) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = make(map[string]*list.Element, n.capacity)
	n.order.Init()
	n.hits = 0
	n.misses = 0
}

// canonicalize applies the transform: trim, unify dash variants, strip
// control and invisible characters, collapse whitespace runs.
func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '–' || r == '—' || r == '−' || r == '‒':
			// en-dash, em-dash, minus, figure-dash
			b.WriteRune('-')
		case r < 0x20 || (r >= 0x7F && r <= 0x9F):
			// C0 and C1 control characters
		case r == ' ':
			// non-breaking space
		case r >= ' ' && r <= '‏':
		case r >= ' ' && r <= ' ':
		case r >= ' ' && r <= '⁯':
			// invisible and separator ranges
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
