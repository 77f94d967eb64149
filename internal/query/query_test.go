package query_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/query"
)

func TestAllMembersCollectsFromEveryField(t *testing.T) {
	q := query.SemanticQuery{
		Measures:   []string{"Orders.count"},
		Dimensions: []string{"Orders.status"},
		TimeDimensions: []query.TimeDimension{
			{Dimension: "Orders.createdAt", Granularity: query.Day},
		},
		Filters: []query.FilterCondition{
			{
				And: []query.FilterCondition{
					{Member: "Orders.region", Operator: query.OpEquals, Values: []any{"us"}},
					{Or: []query.FilterCondition{
						{Member: "Orders.total", Operator: query.OpGt, Values: []any{100}},
					}},
				},
			},
		},
		Order: []query.OrderEntry{{Field: "Orders.count", Direction: query.Desc}},
	}

	got := q.AllMembers()
	require.ElementsMatch(t, []string{
		"Orders.count", "Orders.status", "Orders.createdAt",
		"Orders.region", "Orders.total", "Orders.count",
	}, got)
}

func TestDateRangeIsZero(t *testing.T) {
	require.True(t, query.DateRange{}.IsZero())
	require.False(t, query.DateRange{Relative: "last 7 days"}.IsZero())
	require.False(t, query.DateRange{Start: "2024-01-01", End: "2024-01-31"}.IsZero())
}

func TestFilterConditionIsLeaf(t *testing.T) {
	leaf := query.FilterCondition{Member: "Orders.status", Operator: query.OpEquals}
	require.True(t, leaf.IsLeaf())

	node := query.FilterCondition{And: []query.FilterCondition{leaf}}
	require.False(t, node.IsLeaf())
}
