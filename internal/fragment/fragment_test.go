package fragment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/fragment"
)

type fakeQuoter struct{}

func (fakeQuoter) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (fakeQuoter) Placeholder(idx int) string          { return "$" + itoa(idx) }
func (fakeQuoter) ReusesParams() bool                  { return true }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}

	return digits
}

func TestRenderParamSafety(t *testing.T) {
	f := fragment.Infix("=", fragment.Ident("organisation_id"), fragment.Param(42))

	sql, params := fragment.Render(f, fakeQuoter{})
	require.Equal(t, `("organisation_id" = $1)`, sql)
	require.Equal(t, []any{42}, params)
}

func TestRenderParamSafetyWithMaliciousValue(t *testing.T) {
	clean := fragment.Infix("=", fragment.Ident("name"), fragment.Param("harmless"))
	evil := fragment.Infix("=", fragment.Ident("name"), fragment.Param("abc\x00; DROP TABLE employees;--"))

	sqlClean, _ := fragment.Render(clean, fakeQuoter{})
	sqlEvil, paramsEvil := fragment.Render(evil, fakeQuoter{})

	require.Equal(t, sqlClean, sqlEvil, "SQL text must not change with the parameter value")
	require.NotContains(t, sqlEvil, ";")
	require.Contains(t, paramsEvil, "abc\x00; DROP TABLE employees;--")
}

func TestAndDropsNilChildren(t *testing.T) {
	f := fragment.And(nil, fragment.Lit("TRUE"), nil)
	sql, _ := fragment.Render(f, fakeQuoter{})
	require.Equal(t, "TRUE", sql)
}

func TestAndEmptyIsNil(t *testing.T) {
	require.Nil(t, fragment.And())
}

func TestPrefixRendersFunctionCall(t *testing.T) {
	f := fragment.Prefix("SUM", fragment.Ident("lines"))
	sql, _ := fragment.Render(f, fakeQuoter{})
	require.Equal(t, `SUM("lines")`, sql)
}

func TestAsAliasesExpression(t *testing.T) {
	f := fragment.As(fragment.Prefix("COUNT", fragment.Ident("id")), "Employees.count")
	sql, _ := fragment.Render(f, fakeQuoter{})
	require.Equal(t, `COUNT("id") AS "Employees.count"`, sql)
}

func TestCloneIsIndependent(t *testing.T) {
	base := fragment.Infix("AND", fragment.Lit("a"), fragment.Lit("b"))
	clone := base.Clone()

	sqlBase, _ := fragment.Render(base, fakeQuoter{})
	sqlClone, _ := fragment.Render(clone, fakeQuoter{})
	require.Equal(t, sqlBase, sqlClone)
}

func TestRawSplicesParamsAtPlaceholders(t *testing.T) {
	f := fragment.Raw("strftime('%s', ?)", "2024-01-01")
	sql, params := fragment.Render(f, fakeQuoter{})
	require.Equal(t, "strftime('%s', $1)", sql)
	require.Equal(t, []any{"2024-01-01"}, params)
}
