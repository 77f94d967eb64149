package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/resolver"
)

func TestResolveColumnIsIsolatedAcrossContexts(t *testing.T) {
	dim := model.Dimension{Name: "organisationId", Type: model.DimensionNumber, SQL: model.Column("organisation_id")}

	ctxA := model.NewQueryContext(nil, "tenant-a")
	ctxB := model.NewQueryContext(nil, "tenant-b")

	fragA, err := resolver.ResolveDimension(dim, ctxA)
	require.NoError(t, err)

	fragB, err := resolver.ResolveDimension(dim, ctxB)
	require.NoError(t, err)

	sqlA, _ := fragment.Render(fragA, testQuoter{})
	sqlB, _ := fragment.Render(fragB, testQuoter{})
	require.Equal(t, sqlA, sqlB)

	// Mutating one tree (via Clone+rebuild) must never affect the other —
	// exercised indirectly by confirming they are distinct pointers.
	require.NotSame(t, fragA, fragB)
}

func TestResolveClosureSeesContext(t *testing.T) {
	var seen []any

	dim := model.Dimension{
		Name: "secured",
		Type: model.DimensionString,
		SQL: model.ExpressionFunc(func(ctx *model.QueryContext) (*fragment.Fragment, error) {
			seen = append(seen, ctx.SecurityContext)
			return fragment.Ident("col"), nil
		}),
	}

	ctx := model.NewQueryContext(nil, "org-42")
	_, err := resolver.ResolveDimension(dim, ctx)
	require.NoError(t, err)
	require.Equal(t, []any{"org-42"}, seen)
}

type testQuoter struct{}

func (testQuoter) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (testQuoter) Placeholder(int) string              { return "?" }
func (testQuoter) ReusesParams() bool                  { return false }
