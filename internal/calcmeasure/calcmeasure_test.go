package calcmeasure_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/calcmeasure"
	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/model"
)

func newRegistry(t *testing.T) *model.Registry {
	orders := &model.Cube{
		Name: "Orders",
		Measures: map[string]model.Measure{
			"revenue": {Name: "revenue", Kind: model.KindAggregate, AggregateType: model.Sum, SQL: model.Column("amount")},
			"count":   {Name: "count", Kind: model.KindAggregate, AggregateType: model.Count, SQL: model.Column("id")},
			"aov":     {Name: "aov", Kind: model.KindCalculated, CalculatedSQL: "{revenue} / {count}"},
			"aovDoubled": {
				Name: "aovDoubled", Kind: model.KindCalculated, CalculatedSQL: "{aov} * 2",
			},
		},
	}

	reg, err := model.NewRegistry(orders)
	require.NoError(t, err)

	return reg
}

func TestResolveOrdersDependenciesBeforeDependents(t *testing.T) {
	reg := newRegistry(t)

	plan, err := calcmeasure.Resolve(reg, []string{"Orders.aovDoubled"}, func(string, string) bool { return true })
	require.NoError(t, err)

	require.Equal(t, []string{"Orders.aov", "Orders.aovDoubled"}, plan.Order)
}

func TestResolveDetectsCycle(t *testing.T) {
	a := &model.Cube{
		Name: "A",
		Measures: map[string]model.Measure{
			"x": {Name: "x", Kind: model.KindCalculated, CalculatedSQL: "{y}"},
			"y": {Name: "y", Kind: model.KindCalculated, CalculatedSQL: "{x}"},
		},
	}

	reg, err := model.NewRegistry(a)
	require.NoError(t, err)

	_, err = calcmeasure.Resolve(reg, []string{"A.x"}, func(string, string) bool { return true })
	require.ErrorIs(t, err, errs.ErrCalculatedMeasureCycle)
}

func TestResolveRejectsUnreachableCrossCubeDependency(t *testing.T) {
	a := &model.Cube{
		Name: "A",
		Measures: map[string]model.Measure{
			"calc": {Name: "calc", Kind: model.KindCalculated, CalculatedSQL: "{B.total}"},
		},
	}
	b := &model.Cube{
		Name: "B",
		Measures: map[string]model.Measure{
			"total": {Name: "total", Kind: model.KindAggregate, AggregateType: model.Sum, SQL: model.Column("amount")},
		},
	}

	reg, err := model.NewRegistry(a, b)
	require.NoError(t, err)

	_, err = calcmeasure.Resolve(reg, []string{"A.calc"}, func(string, string) bool { return false })
	require.ErrorIs(t, err, errs.ErrUnreachableCube)
}
