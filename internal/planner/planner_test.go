package planner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/planner"
)

func ordersLineItemsRegistry(t *testing.T) *model.Registry {
	orders := &model.Cube{
		Name: "Orders",
		Joins: []model.CubeJoin{
			{TargetCube: "LineItems", Relationship: model.HasMany, On: []model.JoinColumn{{SourceColumn: "id", TargetColumn: "order_id"}}},
		},
	}
	lineItems := &model.Cube{Name: "LineItems"}

	reg, err := model.NewRegistry(orders, lineItems)
	require.NoError(t, err)

	return reg
}

func TestSelectPrimaryCubeUsesRegistryOrder(t *testing.T) {
	reg := ordersLineItemsRegistry(t)

	primary, err := planner.SelectPrimaryCube(reg, []string{"LineItems", "Orders"})
	require.NoError(t, err)
	require.Equal(t, "Orders", primary)
}

func TestPlanPutsHasManyCubeInPreAggregationCTEWhenMeasureRequested(t *testing.T) {
	reg := ordersLineItemsRegistry(t)

	p, err := planner.Plan(reg, []string{"Orders", "LineItems"}, map[string][]string{
		"LineItems": {"LineItems.quantity"},
	})
	require.NoError(t, err)

	require.Equal(t, "Orders", p.PrimaryCube)
	require.Len(t, p.PreAggregationCTEs, 1)
	require.Equal(t, "LineItems", p.PreAggregationCTEs[0].Cube)
	require.Empty(t, p.JoinCubes)
}

func TestPlanJoinsHasManyCubeDirectlyWhenNoMeasureRequested(t *testing.T) {
	reg := ordersLineItemsRegistry(t)

	p, err := planner.Plan(reg, []string{"Orders", "LineItems"}, map[string][]string{})
	require.NoError(t, err)

	require.Empty(t, p.PreAggregationCTEs)
	require.Len(t, p.JoinCubes, 1)
	require.Equal(t, "LineItems", p.JoinCubes[0].Cube)
}

func TestReachableTraversesJoinGraph(t *testing.T) {
	reg := ordersLineItemsRegistry(t)
	require.True(t, planner.Reachable(reg, "Orders", "LineItems"))
	require.True(t, planner.Reachable(reg, "LineItems", "Orders"))
}

func productsCategoriesRegistry(t *testing.T) *model.Registry {
	products := &model.Cube{
		Name: "Products",
		Dimensions: map[string]model.Dimension{
			"id": {Name: "id", Type: model.DimensionNumber, SQL: model.Column("id"), PrimaryKey: true},
		},
		Joins: []model.CubeJoin{
			{
				TargetCube:   "Categories",
				Relationship: model.BelongsToMany,
				Through: &model.ManyToMany{
					Table:     "product_categories",
					SourceKey: []string{"product_id"},
					TargetKey: []string{"category_id"},
				},
			},
		},
	}
	categories := &model.Cube{
		Name: "Categories",
		Dimensions: map[string]model.Dimension{
			"id": {Name: "id", Type: model.DimensionNumber, SQL: model.Column("id"), PrimaryKey: true},
		},
	}

	reg, err := model.NewRegistry(products, categories)
	require.NoError(t, err)

	return reg
}

func TestPrimaryKeyColumnsSortsAlphabetically(t *testing.T) {
	cube := &model.Cube{
		Dimensions: map[string]model.Dimension{
			"region_id":   {Name: "region_id", PrimaryKey: true},
			"customer_id": {Name: "customer_id", PrimaryKey: true},
			"email":       {Name: "email"},
		},
	}

	require.Equal(t, []string{"customer_id", "region_id"}, planner.PrimaryKeyColumns(cube))
}

func TestPlanExpandsBelongsToManyThroughJunctionWhenMeasureRequested(t *testing.T) {
	reg := productsCategoriesRegistry(t)

	p, err := planner.Plan(reg, []string{"Products", "Categories"}, map[string][]string{
		"Categories": {"Categories.count"},
	})
	require.NoError(t, err)

	require.Len(t, p.PreAggregationCTEs, 1)
	cte := p.PreAggregationCTEs[0]
	require.Equal(t, "Categories", cte.Cube)
	require.Len(t, cte.JoinKeys, 1)
	require.Equal(t, "id", cte.JoinKeys[0].SourceColumn)
	require.Equal(t, "product_id", cte.JoinKeys[0].TargetColumn)

	require.NotNil(t, cte.Junction)
	require.Equal(t, "product_categories", cte.Junction.Table)
	require.Equal(t, []string{"category_id"}, cte.Junction.TargetKeys)
	require.Equal(t, []string{"id"}, cte.Junction.TargetPK)
	require.Equal(t, "LEFT JOIN", cte.Junction.JoinType)
}

func TestPlanJoinsBelongsToManyDirectlyWhenNoMeasureRequested(t *testing.T) {
	reg := productsCategoriesRegistry(t)

	p, err := planner.Plan(reg, []string{"Products", "Categories"}, map[string][]string{})
	require.NoError(t, err)

	require.Empty(t, p.PreAggregationCTEs)
	require.Len(t, p.JoinCubes, 1)
	require.NotNil(t, p.JoinCubes[0].Join.Through)
}

func TestPlanRejectsUnreachableCube(t *testing.T) {
	reg := ordersLineItemsRegistry(t)
	isolated := &model.Cube{Name: "Isolated"}
	reg2, err := model.NewRegistry(reg.MustCube("Orders"), reg.MustCube("LineItems"), isolated)
	require.NoError(t, err)

	_, err = planner.Plan(reg2, []string{"Orders", "Isolated"}, nil)
	require.Error(t, err)
}
