// Package filtercache implements the Filter Cache (spec.md §4.3): a
// content-addressed store keyed by a deterministic serialization of a
// filter predicate, so the same dimension/time predicate used inside a
// pre-aggregation CTE's propagating-filter subquery and in the main
// query's WHERE compiles to one fragment and shares one set of bound
// parameters (spec.md §8 invariant 5).
//
// Grounded on the teacher's internal/differ/util.go normalizeExpression:
// the same "trim, lowercase, canonicalize" shape, applied here to filter
// conditions instead of CHECK-constraint expressions.
package filtercache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/accented-ai/semq/internal/fragment"
)

// Condition is the minimal shape the cache keys on: spec.md §4.3 says
// "member + operator + canonicalized values + optional dateRange". Logical
// AND/OR nodes are never passed here (spec.md §4.3: "not cached, may mix
// cubes across CTE/outer contexts").
type Condition struct {
	Member    string
	Operator  string
	Values    []any
	DateRange [2]string // empty strings when unset
}

// Cache is owned by a single compilation (spec.md §5) and must never be
// shared across goroutines/compilations.
type Cache struct {
	entries map[string]*fragment.Fragment
}

// New returns an empty, compilation-scoped cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*fragment.Fragment)}
}

// Key builds the canonical cache key for a Condition. Values are
// stringified and sorted so that {values: [2, 1]} and {values: [1, 2]}
// collide deliberately — spec.md §4.3 only requires the *predicate* to be
// identical, and an IN-list's declared order never changes its SQL
// semantics, so two filters differing only in list order should still
// share one cache entry and one set of bound parameters.
func Key(c Condition) string {
	vals := make([]string, len(c.Values))
	for i, v := range c.Values {
		vals[i] = fmt.Sprintf("%v", v)
	}

	sort.Strings(vals)

	var b strings.Builder
	b.WriteString(strings.ToLower(c.Member))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(c.Operator))
	b.WriteByte('|')
	b.WriteString(strings.Join(vals, ","))
	b.WriteByte('|')
	b.WriteString(c.DateRange[0])
	b.WriteByte('-')
	b.WriteString(c.DateRange[1])

	return b.String()
}

// Get returns the cached fragment for key, if present.
func (c *Cache) Get(key string) (*fragment.Fragment, bool) {
	f, ok := c.entries[key]
	return f, ok
}

// Put stores f under key. Callers build f once on a cache miss and Put it
// before splicing it into more than one place in the compiled tree — the
// same *fragment.Fragment pointer is then reused by both sites. When the
// dialect's Quoter.ReusesParams() is true, fragment.Render binds each
// shared Param leaf once and repeats its placeholder at later
// occurrences; otherwise it binds the value again at each occurrence.
func (c *Cache) Put(key string, f *fragment.Fragment) {
	c.entries[key] = f
}

// GetOrBuild returns the cached fragment for key, building and storing it
// via build on a miss.
func (c *Cache) GetOrBuild(key string, build func() (*fragment.Fragment, error)) (*fragment.Fragment, error) {
	if f, ok := c.Get(key); ok {
		return f, nil
	}

	f, err := build()
	if err != nil {
		return nil, err
	}

	c.Put(key, f)

	return f, nil
}
