package cte_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/builder"
	"github.com/accented-ai/semq/internal/cte"
	"github.com/accented-ai/semq/internal/dialect/postgres"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/planner"
)

type quoter struct{}

func (quoter) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (quoter) Placeholder(idx int) string          { return "$1" }
func (quoter) ReusesParams() bool                  { return true }

func TestBuildAssemblesSelectFromWhereGroupBy(t *testing.T) {
	lineItems := &model.Cube{
		Name: "LineItems",
		SQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
			return model.Relation{From: fragment.Ident("line_items")}, nil
		}),
		Dimensions: map[string]model.Dimension{
			"order_id": {Name: "order_id", Type: model.DimensionNumber, SQL: model.Column("order_id")},
		},
		Measures: map[string]model.Measure{
			"quantity": {Name: "quantity", Kind: model.KindAggregate, AggregateType: model.Sum, SQL: model.Column("quantity")},
		},
	}

	reg, err := model.NewRegistry(lineItems)
	require.NoError(t, err)

	ctx := model.NewQueryContext(nil, nil)
	mb := builder.NewMeasureBuilder(postgres.New(), reg, nil)

	p := planner.PreAggregationCTE{
		Alias:    "cte_LineItems",
		Cube:     "LineItems",
		Measures: []string{"LineItems.quantity"},
		JoinKeys: []model.JoinColumn{{SourceColumn: "id", TargetColumn: "order_id"}},
	}

	built, err := cte.Build(p, reg, ctx, mb, func(string, string) bool { return true }, nil, nil)
	require.NoError(t, err)

	require.Equal(t, "cte_LineItems", built.Alias)
	require.Len(t, built.Select, 2)
	require.Len(t, built.GroupBy, 1)

	sql, _ := fragment.Render(built.Select[1], quoter{})
	require.Equal(t, `SUM("quantity") AS "LineItems.quantity"`, sql)
}

func TestBuildJoinsJunctionTableForBelongsToMany(t *testing.T) {
	categories := &model.Cube{
		Name: "Categories",
		SQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
			return model.Relation{From: fragment.Ident("categories")}, nil
		}),
		Dimensions: map[string]model.Dimension{
			"id": {Name: "id", Type: model.DimensionNumber, SQL: model.Column("id"), PrimaryKey: true},
		},
		Measures: map[string]model.Measure{
			"count": {Name: "count", Kind: model.KindAggregate, AggregateType: model.Count, SQL: model.Column("id")},
		},
	}

	reg, err := model.NewRegistry(categories)
	require.NoError(t, err)

	ctx := model.NewQueryContext(nil, nil)
	mb := builder.NewMeasureBuilder(postgres.New(), reg, nil)

	securityCalled := false

	p := planner.PreAggregationCTE{
		Alias:    "cte_Categories",
		Cube:     "Categories",
		Measures: []string{"Categories.count"},
		JoinKeys: []model.JoinColumn{{SourceColumn: "id", TargetColumn: "product_id"}},
		Junction: &planner.Junction{
			Table:      "product_categories",
			TargetKeys: []string{"category_id"},
			TargetPK:   []string{"id"},
			JoinType:   "LEFT JOIN",
			SecuritySQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
				securityCalled = true
				return model.Relation{Where: fragment.Equal(fragment.Ident("product_categories.active"), fragment.Param(true))}, nil
			}),
		},
	}

	built, err := cte.Build(p, reg, ctx, mb, func(string, string) bool { return true }, nil, nil)
	require.NoError(t, err)
	require.True(t, securityCalled)

	fromSQL, _ := fragment.Render(built.From, quoter{})
	require.Contains(t, fromSQL, "product_categories")
	require.Contains(t, fromSQL, "LEFT JOIN")

	whereSQL, params := fragment.Render(built.Where, quoter{})
	require.Contains(t, whereSQL, "product_categories")
	require.Equal(t, []any{true}, params)

	require.Len(t, built.Select, 2)
	require.Len(t, built.GroupBy, 1)
}

func TestPropagatingFilterSingleKeyUsesIN(t *testing.T) {
	f, err := cte.PropagatingFilter(
		[]*fragment.Fragment{fragment.Ident("order_id")},
		[]*fragment.Fragment{fragment.Ident("id")},
		model.Relation{From: fragment.Ident("orders")},
		fragment.Infix("=", fragment.Ident("region"), fragment.Param("us")),
		nil, "",
	)
	require.NoError(t, err)

	sql, params := fragment.Render(f, quoter{})
	require.Contains(t, sql, "IN (SELECT")
	require.Equal(t, []any{"us"}, params)
}

func TestPropagatingFilterCompositeKeyUsesEXISTS(t *testing.T) {
	f, err := cte.PropagatingFilter(
		[]*fragment.Fragment{fragment.Ident("order_id"), fragment.Ident("region")},
		[]*fragment.Fragment{fragment.Ident("id"), fragment.Ident("region")},
		model.Relation{From: fragment.Ident("orders")},
		nil,
		nil, "",
	)
	require.NoError(t, err)

	sql, _ := fragment.Render(f, quoter{})
	require.Contains(t, sql, "EXISTS (SELECT")
}
