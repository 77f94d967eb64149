package semq_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/dialect/postgres"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/pkg/semq"
)

func ordersRegistry(t *testing.T) *semq.Registry {
	orders := &semq.Cube{
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

	reg, err := semq.NewRegistry(orders)
	require.NoError(t, err)

	return reg
}

func TestCompilerCompileProducesSQLAndAnnotation(t *testing.T) {
	reg := ordersRegistry(t)
	c := semq.New(reg, postgres.New())

	q := semq.SemanticQuery{
		Dimensions: []string{"Orders.status"},
		Measures:   []string{"Orders.count"},
	}

	res, err := c.Compile(q, semq.NewQueryContext(nil, nil), time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, res.SQL)
	require.Equal(t, "Orders", res.Annotation.PrimaryCube)
}

func TestCompilerExplainReturnsAnnotationOnly(t *testing.T) {
	reg := ordersRegistry(t)
	c := semq.New(reg, postgres.New())

	q := semq.SemanticQuery{Measures: []string{"Orders.count"}}

	ann, err := c.Explain(q, semq.NewQueryContext(nil, nil), time.Now())
	require.NoError(t, err)
	require.Equal(t, "Orders", ann.PrimaryCube)
}
