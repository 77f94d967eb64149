package builder

import "github.com/accented-ai/semq/internal/fragment"

// GroupByBuilder emits GROUP BY lists (spec.md §4.4 GroupByBuilder,
// §3 invariant 7: no GROUP BY at all when there are no aggregate measures
// and no post-aggregation window base measures).
type GroupByBuilder struct{}

// NewGroupByBuilder returns a GroupByBuilder; it carries no state, so a
// zero value works equally well, but the constructor matches the other
// three builders' calling convention.
func NewGroupByBuilder() *GroupByBuilder { return &GroupByBuilder{} }

// BuildOuter returns the outer query's GROUP BY columns: every requested
// dimension and time-dimension expression, skipped entirely when
// hasAggregates is false (invariant 7).
func (g *GroupByBuilder) BuildOuter(dimensionExprs []*fragment.Fragment, hasAggregates bool) []*fragment.Fragment {
	if !hasAggregates || len(dimensionExprs) == 0 {
		return nil
	}

	return dimensionExprs
}
