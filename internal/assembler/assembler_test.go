package assembler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/assembler"
	"github.com/accented-ai/semq/internal/dialect/postgres"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/query"
)

func singleCubeRegistry(t *testing.T) *model.Registry {
	orders := &model.Cube{
		Name: "Orders",
		SQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
			return model.Relation{From: fragment.Ident("orders")}, nil
		}),
		Dimensions: map[string]model.Dimension{
			"status": {Name: "status", Type: model.DimensionString, SQL: model.Column("orders.status")},
		},
		Measures: map[string]model.Measure{
			"count": {Name: "count", Kind: model.KindAggregate, AggregateType: model.Count, SQL: model.Column("orders.id")},
		},
	}

	reg, err := model.NewRegistry(orders)
	require.NoError(t, err)

	return reg
}

// ordersLineItemsRegistry builds a two-cube registry: Orders hasMany
// LineItems, matching the fan-out scenario spec.md §4.7 exists to prevent.
func ordersLineItemsRegistry(t *testing.T) *model.Registry {
	orders := &model.Cube{
		Name: "Orders",
		SQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
			return model.Relation{From: fragment.Ident("orders")}, nil
		}),
		Dimensions: map[string]model.Dimension{
			"id":     {Name: "id", Type: model.DimensionNumber, SQL: model.Column("orders.id"), PrimaryKey: true},
			"status": {Name: "status", Type: model.DimensionString, SQL: model.Column("orders.status")},
		},
		Measures: map[string]model.Measure{
			"count": {Name: "count", Kind: model.KindAggregate, AggregateType: model.Count, SQL: model.Column("orders.id")},
		},
		Joins: []model.CubeJoin{
			{TargetCube: "LineItems", Relationship: model.HasMany, On: []model.JoinColumn{{SourceColumn: "id", TargetColumn: "order_id"}}},
		},
	}

	lineItems := &model.Cube{
		Name: "LineItems",
		SQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
			return model.Relation{From: fragment.Ident("line_items")}, nil
		}),
		Dimensions: map[string]model.Dimension{
			"order_id": {Name: "order_id", Type: model.DimensionNumber, SQL: model.Column("line_items.order_id")},
		},
		Measures: map[string]model.Measure{
			"quantity": {Name: "quantity", Kind: model.KindAggregate, AggregateType: model.Sum, SQL: model.Column("line_items.quantity")},
		},
	}

	reg, err := model.NewRegistry(orders, lineItems)
	require.NoError(t, err)

	return reg
}

// productsCategoriesRegistry builds a belongsToMany scenario: Products and
// Categories joined through the product_categories junction table, matching
// spec.md §4.7 step 3's junction-table expansion.
func productsCategoriesRegistry(t *testing.T) *model.Registry {
	products := &model.Cube{
		Name: "Products",
		SQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
			return model.Relation{From: fragment.Ident("products")}, nil
		}),
		Dimensions: map[string]model.Dimension{
			"id":   {Name: "id", Type: model.DimensionNumber, SQL: model.Column("products.id"), PrimaryKey: true},
			"name": {Name: "name", Type: model.DimensionString, SQL: model.Column("products.name")},
		},
		Measures: map[string]model.Measure{
			"count": {Name: "count", Kind: model.KindAggregate, AggregateType: model.Count, SQL: model.Column("products.id")},
		},
		Joins: []model.CubeJoin{
			{
				TargetCube:   "Categories",
				Relationship: model.BelongsToMany,
				Through: &model.ManyToMany{
					Table:     "product_categories",
					SourceKey: []string{"product_id"},
					TargetKey: []string{"category_id"},
					SecuritySQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
						return model.Relation{Where: fragment.Equal(fragment.Ident("product_categories.active"), fragment.Param(true))}, nil
					}),
				},
			},
		},
	}

	categories := &model.Cube{
		Name: "Categories",
		SQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
			return model.Relation{From: fragment.Ident("categories")}, nil
		}),
		Dimensions: map[string]model.Dimension{
			"id":   {Name: "id", Type: model.DimensionNumber, SQL: model.Column("categories.id"), PrimaryKey: true},
			"name": {Name: "name", Type: model.DimensionString, SQL: model.Column("categories.name")},
		},
		Measures: map[string]model.Measure{
			"count": {Name: "count", Kind: model.KindAggregate, AggregateType: model.Count, SQL: model.Column("categories.id")},
		},
	}

	reg, err := model.NewRegistry(products, categories)
	require.NoError(t, err)

	return reg
}

func TestCompileBelongsToManyMeasureExpandsJunctionInCTE(t *testing.T) {
	reg := productsCategoriesRegistry(t)

	q := query.SemanticQuery{
		Dimensions: []string{"Products.name"},
		Measures:   []string{"Categories.count"},
	}

	res, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.NoError(t, err)
	require.Contains(t, res.SQL, "WITH")
	require.Contains(t, res.SQL, "product_categories")
	require.Len(t, res.Annotation.CTEAliases, 1)
}

func TestCompileBelongsToManyWithoutMeasureJoinsThroughJunctionDirectly(t *testing.T) {
	reg := productsCategoriesRegistry(t)

	q := query.SemanticQuery{
		Dimensions: []string{"Products.name", "Categories.name"},
	}

	res, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.NoError(t, err)
	require.Empty(t, res.Annotation.CTEAliases)
	require.Contains(t, res.SQL, "product_categories")
	require.Contains(t, res.SQL, `"categories"`)
}

func TestCompileSingleCubeAggregate(t *testing.T) {
	reg := singleCubeRegistry(t)

	q := query.SemanticQuery{
		Dimensions: []string{"Orders.status"},
		Measures:   []string{"Orders.count"},
	}

	res, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.NoError(t, err)
	require.Contains(t, res.SQL, "SELECT")
	require.Contains(t, res.SQL, `"orders"`)
	require.Contains(t, res.SQL, "GROUP BY")
	require.Equal(t, "Orders", res.Annotation.PrimaryCube)
}

func TestCompileRejectsUnknownMember(t *testing.T) {
	reg := singleCubeRegistry(t)

	q := query.SemanticQuery{Measures: []string{"Orders.bogus"}}

	_, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.Error(t, err)
}

func TestCompileAppliesFilterAsParameterNotLiteral(t *testing.T) {
	reg := singleCubeRegistry(t)

	malicious := "'; DROP TABLE orders; --"

	q := query.SemanticQuery{
		Measures: []string{"Orders.count"},
		Filters: []query.FilterCondition{
			{Member: "Orders.status", Operator: query.OpEquals, Values: []any{malicious}},
		},
	}

	res, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.NoError(t, err)
	require.NotContains(t, res.SQL, "DROP TABLE")
	require.Contains(t, res.Params, malicious)
}

func TestCompileDefaultsLimitWhenOnlyOffsetGiven(t *testing.T) {
	reg := singleCubeRegistry(t)

	offset := 10
	q := query.SemanticQuery{Measures: []string{"Orders.count"}, Offset: &offset}

	res, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.NoError(t, err)
	require.Contains(t, res.SQL, "LIMIT")
	require.Contains(t, res.SQL, "OFFSET")
	require.Contains(t, res.Params, 50)
	require.Contains(t, res.Params, 10)
}

func TestCompileRejectsNegativeLimit(t *testing.T) {
	reg := singleCubeRegistry(t)

	bad := -1
	q := query.SemanticQuery{Measures: []string{"Orders.count"}, Limit: &bad}

	_, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.Error(t, err)
}

func TestCompileHasManyMeasureUsesPreAggregationCTE(t *testing.T) {
	reg := ordersLineItemsRegistry(t)

	q := query.SemanticQuery{
		Dimensions: []string{"Orders.status"},
		Measures:   []string{"LineItems.quantity"},
	}

	res, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.NoError(t, err)
	require.Contains(t, res.SQL, "WITH")
	require.Len(t, res.Annotation.CTEAliases, 1)
	require.Contains(t, res.SQL, res.Annotation.CTEAliases[0])
}

func TestCompileOrderByRejectsFieldNotInSelect(t *testing.T) {
	reg := singleCubeRegistry(t)

	q := query.SemanticQuery{
		Measures: []string{"Orders.count"},
		Order:    []query.OrderEntry{{Field: "Orders.status", Direction: query.Asc}},
	}

	_, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.Error(t, err)
}

func TestCompileOrderByAcceptsSelectedDimension(t *testing.T) {
	reg := singleCubeRegistry(t)

	q := query.SemanticQuery{
		Dimensions: []string{"Orders.status"},
		Measures:   []string{"Orders.count"},
		Order:      []query.OrderEntry{{Field: "Orders.status", Direction: query.Desc}},
	}

	res, err := assembler.Compile(reg, q, model.NewQueryContext(nil, nil), postgres.New(), time.Now(), nil)
	require.NoError(t, err)
	require.Contains(t, res.SQL, "ORDER BY")
	require.Contains(t, res.SQL, "DESC")
}
