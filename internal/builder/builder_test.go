package builder_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/builder"
	"github.com/accented-ai/semq/internal/dialect/mysql"
	"github.com/accented-ai/semq/internal/dialect/postgres"
	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/query"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type quoter struct{}

func (quoter) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (quoter) Placeholder(idx int) string          { return "$" + string(rune('0'+idx)) }
func (quoter) ReusesParams() bool                  { return true }

func TestParseRelativeDateRangeToday(t *testing.T) {
	b, err := builder.ParseRelativeDateRange("today", fixedNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), b.Start)
	require.Equal(t, time.Date(2024, 3, 15, 23, 59, 59, 999000000, time.UTC), b.End)
}

func TestParseRelativeDateRangeLast7Days(t *testing.T) {
	b, err := builder.ParseRelativeDateRange("last 7 days", fixedNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), b.Start)
	require.Equal(t, time.Date(2024, 3, 15, 23, 59, 59, 999000000, time.UTC), b.End)
}

func TestParseRelativeDateRangeThisWeekMondayAnchored(t *testing.T) {
	// 2024-03-15 is a Friday.
	b, err := builder.ParseRelativeDateRange("this week", fixedNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), b.Start)
	require.Equal(t, time.Date(2024, 3, 17, 23, 59, 59, 999000000, time.UTC), b.End)
}

func TestParseRelativeDateRangeRejectsGarbage(t *testing.T) {
	_, err := builder.ParseRelativeDateRange("whenever", fixedNow)
	require.ErrorIs(t, err, errs.ErrInvalidDateRange)
}

func TestFilterBuilderEqualsWithNoValuesIsFalse(t *testing.T) {
	fb := builder.NewFilterBuilder(postgres.New(), fixedNow)

	f, err := fb.Build(query.FilterCondition{Member: "Orders.status", Operator: query.OpEquals, Values: nil}, fragment.Ident("status"), false)
	require.NoError(t, err)

	sql, _ := fragment.Render(f, quoter{})
	require.Equal(t, "FALSE", sql)
}

func TestFilterBuilderSanitizesNulByteValues(t *testing.T) {
	fb := builder.NewFilterBuilder(postgres.New(), fixedNow)

	f, err := fb.Build(query.FilterCondition{
		Member: "Orders.status", Operator: query.OpIn,
		Values: []any{"open", "ab\x00c", ""},
	}, fragment.Ident("status"), false)
	require.NoError(t, err)

	sql, params := fragment.Render(f, quoter{})
	require.Contains(t, sql, "IN")
	require.Equal(t, []any{"open"}, params)
}

func TestFilterBuilderRejectsDateRangeOnNonTimeField(t *testing.T) {
	fb := builder.NewFilterBuilder(postgres.New(), fixedNow)

	_, err := fb.Build(query.FilterCondition{
		Member: "Orders.status", Operator: query.OpEquals,
		DateRange: query.DateRange{Relative: "today"},
	}, fragment.Ident("status"), false)
	require.ErrorIs(t, err, errs.ErrInvalidDateRange)
}

func TestFilterBuilderArrayOpsAllowedOnPostgres(t *testing.T) {
	// Postgres is the dialect that allows array operators, so an
	// arrayContains filter builds a predicate rather than degrading.
	fb := builder.NewFilterBuilder(postgres.New(), fixedNow)

	f, err := fb.Build(query.FilterCondition{
		Member: "Orders.tags", Operator: query.OpArrayContains, Values: []any{[]string{"a"}},
	}, fragment.Ident("tags"), false)
	require.NoError(t, err)
	require.NotNil(t, f)
}

// salesRegistry matches spec.md §8 scenario 5: Sales.medianPrice is
// unsupported on MySQL and must degrade with a logged warning.
func salesRegistry(t *testing.T) *model.Registry {
	sales := &model.Cube{
		Name: "Sales",
		Measures: map[string]model.Measure{
			"medianPrice": {
				Name: "medianPrice", Kind: model.KindStatistical,
				StatisticalType: model.Median, SQL: model.Column("price"),
			},
			"rank": {
				Name: "rank", Kind: model.KindWindow, SQL: model.Column("price"),
				WindowType: model.Rank,
			},
		},
	}

	reg, err := model.NewRegistry(sales)
	require.NoError(t, err)

	return reg
}

func TestBuildAggregateDegradesUnsupportedStatisticalWithWarning(t *testing.T) {
	reg := salesRegistry(t)
	mb := builder.NewMeasureBuilder(mysql.New(), reg, nil)

	f, err := mb.BuildAggregate("Sales.medianPrice", model.NewQueryContext(nil, nil))
	require.NoError(t, err)

	sql, _ := fragment.Render(f, quoter{})
	require.Equal(t, "MAX(NULL)", sql)
}

func TestBuildAggregateWindowSucceedsWhenSupported(t *testing.T) {
	reg := salesRegistry(t)
	mb := builder.NewMeasureBuilder(mysql.New(), reg, nil)

	f, err := mb.BuildAggregate("Sales.rank", model.NewQueryContext(nil, nil))
	require.NoError(t, err)

	sql, _ := fragment.Render(f, quoter{})
	require.Contains(t, sql, "RANK()")
}

func TestGroupByBuilderSkipsWhenNoAggregates(t *testing.T) {
	g := builder.NewGroupByBuilder()
	out := g.BuildOuter([]*fragment.Fragment{fragment.Ident("status")}, false)
	require.Nil(t, out)
}

func TestGroupByBuilderIncludesDimensionsWhenAggregating(t *testing.T) {
	g := builder.NewGroupByBuilder()
	out := g.BuildOuter([]*fragment.Fragment{fragment.Ident("status")}, true)
	require.Len(t, out, 1)
}
