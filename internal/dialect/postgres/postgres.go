// Package postgres implements the dialect.Adapter for PostgreSQL (and, by
// extension, any wire-compatible engine such as SingleStore's Postgres
// mode is explicitly not — SingleStore is handled by the mysql package).
// Grounded on the teacher's internal/generator DDL builders, which are the
// one place in the teacher repo that assembles dialect-specific SQL
// strings by hand rather than shelling out to a driver.
package postgres

import (
	"fmt"
	"strconv"

	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/fragment"
)

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (Adapter) Kind() dialect.Kind { return dialect.Postgres }

func (Adapter) Quoter() fragment.Quoter { return passthroughQuoter{} }

func (Adapter) Capabilities() dialect.Capabilities {
	return dialect.Capabilities{
		SupportsStddev:              true,
		SupportsVariance:             true,
		SupportsPercentile:           true,
		SupportsWindowFunctions:      true,
		SupportsFrameClause:          true,
		SupportsLateralJoins:         true,
		SupportsPercentileSubqueries: true,
	}
}

func (Adapter) BuildTimeDimension(g dialect.Granularity, expr *fragment.Fragment) *fragment.Fragment {
	unit, ok := truncUnit(g)
	if !ok {
		return nil
	}

	return fragment.Prefix("DATE_TRUNC", fragment.Lit("'"+unit+"'"), expr)
}

func truncUnit(g dialect.Granularity) (string, bool) {
	switch g {
	case dialect.Second:
		return "second", true
	case dialect.Minute:
		return "minute", true
	case dialect.Hour:
		return "hour", true
	case dialect.Day:
		return "day", true
	case dialect.Week:
		return "week", true
	case dialect.Month:
		return "month", true
	case dialect.Quarter:
		return "quarter", true
	case dialect.Year:
		return "year", true
	default:
		return "", false
	}
}

func (a Adapter) BuildStringCondition(expr *fragment.Fragment, op dialect.StringOp, value *fragment.Fragment) *fragment.Fragment {
	switch op {
	case dialect.Contains:
		return fragment.Infix("ILIKE", expr, wrapPercent(value, true, true))
	case dialect.NotContains:
		return fragment.Infix("NOT ILIKE", expr, wrapPercent(value, true, true))
	case dialect.StartsWith:
		return fragment.Infix("ILIKE", expr, wrapPercent(value, false, true))
	case dialect.EndsWith:
		return fragment.Infix("ILIKE", expr, wrapPercent(value, true, false))
	case dialect.Like:
		return fragment.Infix("LIKE", expr, value)
	case dialect.NotLike:
		return fragment.Infix("NOT LIKE", expr, value)
	case dialect.ILike:
		return fragment.Infix("ILIKE", expr, value)
	case dialect.Regex:
		return fragment.Infix("~", expr, value)
	case dialect.NotRegex:
		return fragment.Infix("!~", expr, value)
	default:
		return nil
	}
}

// wrapPercent concatenates '%' around value using the dialect's `||`
// concatenation operator so a contains/startsWith/endsWith filter stays
// parameterized (spec.md §8 invariant 1) rather than interpolating '%'
// into a literal alongside the user value.
func wrapPercent(value *fragment.Fragment, leading, trailing bool) *fragment.Fragment {
	parts := []*fragment.Fragment{}

	if leading {
		parts = append(parts, fragment.Lit("'%'"))
	}

	parts = append(parts, value)

	if trailing {
		parts = append(parts, fragment.Lit("'%'"))
	}

	if len(parts) == 1 {
		return parts[0]
	}

	return fragment.Infix("||", parts...)
}

func (Adapter) Cast(expr *fragment.Fragment, target dialect.CastTarget) *fragment.Fragment {
	var t string

	switch target {
	case dialect.CastTimestamp:
		t = "timestamptz"
	case dialect.CastDecimal:
		t = "numeric"
	case dialect.CastInteger:
		t = "integer"
	default:
		return nil
	}

	return fragment.Infix("::", expr, fragment.Lit(t))
}

func (Adapter) NullSafeAvg(expr *fragment.Fragment) *fragment.Fragment {
	return fragment.Prefix("COALESCE", fragment.Prefix("AVG", expr), fragment.Lit("0"))
}

func (Adapter) BooleanLiteral(v bool) *fragment.Fragment {
	if v {
		return fragment.Lit("TRUE")
	}

	return fragment.Lit("FALSE")
}

func (Adapter) PrepareValue(v any) any { return v }

func (Adapter) PrepareDateValue(v any) any {
	// Postgres accepts ISO8601 text for timestamptz parameters natively;
	// pgx encodes a time.Time parameter directly, so no conversion beyond
	// passing the value through is required.
	return v
}

func (Adapter) IsTimestampInteger() bool { return false }

func (Adapter) CaseWhen(cond, thenExpr, elseExpr *fragment.Fragment) *fragment.Fragment {
	children := []*fragment.Fragment{fragment.Lit("CASE WHEN"), cond, fragment.Lit("THEN"), thenExpr}
	if elseExpr != nil {
		children = append(children, fragment.Lit("ELSE"), elseExpr)
	}

	children = append(children, fragment.Lit("END"))

	return fragment.InfixUnparenthesized(" ", children...)
}

func (Adapter) Interval(n int, unit dialect.IntervalUnit) *fragment.Fragment {
	if unit == dialect.UnitQuarter {
		n *= 3
	}

	return fragment.Lit(fmt.Sprintf("INTERVAL '%d %s'", n, intervalUnitName(unit, n)))
}

func intervalUnitName(unit dialect.IntervalUnit, n int) string {
	name := map[dialect.IntervalUnit]string{
		dialect.UnitSecond:  "second",
		dialect.UnitMinute:  "minute",
		dialect.UnitHour:    "hour",
		dialect.UnitDay:     "day",
		dialect.UnitWeek:    "week",
		dialect.UnitMonth:   "month",
		dialect.UnitQuarter: "month", // Interval has already scaled n by 3
		dialect.UnitYear:    "year",
	}[unit]

	if n != 1 && n != -1 {
		name += "s"
	}

	return name
}

func (a Adapter) DateAdd(expr *fragment.Fragment, n int, unit dialect.IntervalUnit) *fragment.Fragment {
	if n >= 0 {
		return fragment.Infix("+", expr, a.Interval(n, unit))
	}

	return fragment.Infix("-", expr, a.Interval(-n, unit))
}

func (Adapter) DateDiff(a, b *fragment.Fragment, unit dialect.IntervalUnit) *fragment.Fragment {
	diff := fragment.Infix("-", b, a)

	switch unit {
	case dialect.UnitDay:
		return fragment.Prefix("EXTRACT", fragment.Lit("DAY FROM "+render(diff)))
	default:
		return fragment.Prefix("EXTRACT", fragment.Lit("EPOCH FROM "+render(diff)))
	}
}

func (Adapter) TimeDiffSeconds(a, b *fragment.Fragment) *fragment.Fragment {
	diff := fragment.Infix("-", b, a)
	return fragment.Prefix("EXTRACT", fragment.Lit("EPOCH FROM "+render(diff)))
}

// render is a best-effort textual rendering used only to embed a
// sub-expression inside an EXTRACT(... FROM ...) Lit, since EXTRACT's
// syntax (`FROM`, not a comma) doesn't fit the Prefix/Infix shapes. The
// identifiers involved are always plain column/alias references by the
// time DateDiff/TimeDiffSeconds are called, so this never needs to quote a
// dialect-specific identifier differently than a plain pass-through would.
func render(f *fragment.Fragment) string {
	sql, _ := fragment.Render(f, passthroughQuoter{})
	return sql
}

type passthroughQuoter struct{}

func (passthroughQuoter) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (passthroughQuoter) Placeholder(idx int) string          { return "$" + strconv.Itoa(idx) }

// ReusesParams is true: Postgres' $N placeholders let the same bound value
// be referenced by position more than once in a single statement.
func (passthroughQuoter) ReusesParams() bool { return true }

func (a Adapter) ConditionalAggregate(aggregateCall *fragment.Fragment, innerExpr, cond *fragment.Fragment, rebuild func(*fragment.Fragment) *fragment.Fragment) *fragment.Fragment {
	if cond == nil {
		return aggregateCall
	}

	return fragment.InfixUnparenthesized(" ", aggregateCall, fragment.Lit("FILTER (WHERE"), cond, fragment.Lit(")"))
}

func (Adapter) BuildStddev(expr *fragment.Fragment, sample bool) *fragment.Fragment {
	if sample {
		return fragment.Prefix("STDDEV_SAMP", expr)
	}

	return fragment.Prefix("STDDEV_POP", expr)
}

func (Adapter) BuildVariance(expr *fragment.Fragment, sample bool) *fragment.Fragment {
	if sample {
		return fragment.Prefix("VAR_SAMP", expr)
	}

	return fragment.Prefix("VAR_POP", expr)
}

func (Adapter) BuildPercentile(expr *fragment.Fragment, percentile float64) *fragment.Fragment {
	p := strconv.FormatFloat(percentile, 'f', -1, 64)

	return fragment.InfixUnparenthesized(" ",
		fragment.Lit("PERCENTILE_CONT("+p+") WITHIN GROUP (ORDER BY"), expr, fragment.Lit(")"))
}

func (Adapter) BuildWindowFunction(spec dialect.WindowFuncSpec) *fragment.Fragment {
	call := windowCall(spec)
	if call == nil {
		return nil
	}

	over := buildOver(spec)

	return fragment.InfixUnparenthesized(" ", call, fragment.Lit("OVER"), over)
}

func windowCall(spec dialect.WindowFuncSpec) *fragment.Fragment {
	switch spec.Type {
	case dialect.WinLag:
		return lagLead("LAG", spec)
	case dialect.WinLead:
		return lagLead("LEAD", spec)
	case dialect.WinRank:
		return fragment.Lit("RANK()")
	case dialect.WinDenseRank:
		return fragment.Lit("DENSE_RANK()")
	case dialect.WinRowNumber:
		return fragment.Lit("ROW_NUMBER()")
	case dialect.WinNTile:
		return fragment.Prefix("NTILE", fragment.Lit(strconv.Itoa(spec.NTile)))
	case dialect.WinFirstValue:
		return fragment.Prefix("FIRST_VALUE", spec.Arg)
	case dialect.WinLastValue:
		return fragment.Prefix("LAST_VALUE", spec.Arg)
	case dialect.WinMovingAvg:
		return fragment.Prefix("AVG", spec.Arg)
	case dialect.WinMovingSum:
		return fragment.Prefix("SUM", spec.Arg)
	default:
		return nil
	}
}

func lagLead(name string, spec dialect.WindowFuncSpec) *fragment.Fragment {
	args := []*fragment.Fragment{spec.Arg}
	if spec.Offset != 0 {
		args = append(args, fragment.Lit(strconv.Itoa(spec.Offset)))

		if spec.DefaultValue != nil {
			args = append(args, fragment.Param(spec.DefaultValue))
		}
	}

	return fragment.Prefix(name, args...)
}

func buildOver(spec dialect.WindowFuncSpec) *fragment.Fragment {
	var parts []*fragment.Fragment

	if len(spec.PartitionBy) > 0 {
		parts = append(parts, fragment.Lit("PARTITION BY"))

		for i, p := range spec.PartitionBy {
			if i > 0 {
				parts = append(parts, fragment.Lit(","))
			}

			parts = append(parts, p)
		}
	}

	if len(spec.OrderBy) > 0 {
		parts = append(parts, fragment.Lit("ORDER BY"))

		for i, o := range spec.OrderBy {
			if i > 0 {
				parts = append(parts, fragment.Lit(","))
			}

			if o.Desc {
				parts = append(parts, o.Expr, fragment.Lit("DESC"))
			} else {
				parts = append(parts, o.Expr)
			}
		}
	}

	if spec.HasFrame {
		parts = append(parts, fragment.Lit(frameClause(spec)))
	}

	inner := fragment.InfixUnparenthesized(" ", parts...)

	return fragment.InfixUnparenthesized("", fragment.Lit("("), inner, fragment.Lit(")"))
}

func frameClause(spec dialect.WindowFuncSpec) string {
	pre := "UNBOUNDED PRECEDING"
	if spec.FramePreceding > 0 {
		pre = fmt.Sprintf("%d PRECEDING", spec.FramePreceding)
	}

	fol := "CURRENT ROW"
	if spec.FrameFollowing > 0 {
		fol = fmt.Sprintf("%d FOLLOWING", spec.FrameFollowing)
	}

	return fmt.Sprintf("ROWS BETWEEN %s AND %s", pre, fol)
}

func (Adapter) PreprocessTemplate(template string) string { return template }
