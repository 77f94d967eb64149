// Package sqlite implements dialect.Adapter for SQLite using strftime/date
// modifiers, and demonstrates wiring the real modernc.org/sqlite
// (pure-Go, cgo-free) driver for the out-of-core executor path, the same
// way the mysql package wires go-sql-driver/mysql.
package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/fragment"
)

// Open returns a *sql.DB wired to the real pure-Go SQLite driver.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	return db, nil
}

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (Adapter) Kind() dialect.Kind { return dialect.SQLite }

func (Adapter) Quoter() fragment.Quoter { return plainQuoter{} }

func (Adapter) Capabilities() dialect.Capabilities {
	return dialect.Capabilities{
		SupportsStddev:          false,
		SupportsVariance:        false,
		SupportsPercentile:      false,
		SupportsWindowFunctions: true,
		SupportsFrameClause:     true,
		SupportsLateralJoins:    false,
	}
}

func (a Adapter) BuildTimeDimension(g dialect.Granularity, expr *fragment.Fragment) *fragment.Fragment {
	switch g {
	case dialect.Week:
		return a.buildWeek(expr)
	case dialect.Quarter:
		return a.buildQuarter(expr)
	}

	modifier, ok := strftimeFormat(g)
	if !ok {
		return nil
	}

	return fragment.Prefix("strftime", fragment.Lit("'"+modifier+"'"), expr)
}

func strftimeFormat(g dialect.Granularity) (string, bool) {
	switch g {
	case dialect.Second:
		return "%Y-%m-%d %H:%M:%S", true
	case dialect.Minute:
		return "%Y-%m-%d %H:%M:00", true
	case dialect.Hour:
		return "%Y-%m-%d %H:00:00", true
	case dialect.Day:
		return "%Y-%m-%d 00:00:00", true
	case dialect.Month:
		return "%Y-%m-01", true
	case dialect.Year:
		return "%Y-01-01", true
	default:
		// Week/Quarter have no single strftime modifier; the buildWeek/
		// buildQuarter helpers below compose `date(..., modifier)` chains.
		return "", false
	}
}

func (Adapter) buildWeek(expr *fragment.Fragment) *fragment.Fragment {
	// SQLite's `weekday 1` modifier moves forward to the next Monday, or
	// stays put on a Monday; stepping back 6 days first lands every day of
	// a week on that week's Monday, per spec.md §4.4's Monday-start
	// convention.
	exprSQL := renderPlain(expr)

	return fragment.Lit(fmt.Sprintf("date(%s, '-6 days', 'weekday 1')", exprSQL))
}

func (Adapter) buildQuarter(expr *fragment.Fragment) *fragment.Fragment {
	exprSQL := renderPlain(expr)

	return fragment.Lit(fmt.Sprintf(
		"date(%s, 'start of year', (((CAST(strftime('%%m', %s) AS INTEGER) - 1) / 3) * 3) || ' months')",
		exprSQL, exprSQL,
	))
}

// BuildTimeDimensionFull dispatches Week/Quarter to the two composite
// helpers above and every other granularity to the strftime path. It
// returns the same fragment as BuildTimeDimension, which
// builder.DateTimeBuilder calls through dialect.Adapter and which does the
// same dispatch.
func (a Adapter) BuildTimeDimensionFull(g dialect.Granularity, expr *fragment.Fragment) *fragment.Fragment {
	switch g {
	case dialect.Week:
		return a.buildWeek(expr)
	case dialect.Quarter:
		return a.buildQuarter(expr)
	default:
		return a.BuildTimeDimension(g, expr)
	}
}

func renderPlain(f *fragment.Fragment) string {
	sql, _ := fragment.Render(f, plainQuoter{})
	return sql
}

type plainQuoter struct{}

func (plainQuoter) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (plainQuoter) Placeholder(int) string              { return "?" }

// ReusesParams is false: SQLite's "?" placeholders are positional like
// MySQL's, not reusable by index.
func (plainQuoter) ReusesParams() bool { return false }

func (a Adapter) BuildStringCondition(expr *fragment.Fragment, op dialect.StringOp, value *fragment.Fragment) *fragment.Fragment {
	lowerExpr := fragment.Prefix("LOWER", expr)
	lowerValue := fragment.Prefix("LOWER", value)

	switch op {
	case dialect.Contains:
		return fragment.Infix("LIKE", lowerExpr, wrapPercent(lowerValue, true, true))
	case dialect.NotContains:
		return fragment.Infix("NOT LIKE", lowerExpr, wrapPercent(lowerValue, true, true))
	case dialect.StartsWith:
		return fragment.Infix("LIKE", lowerExpr, wrapPercent(lowerValue, false, true))
	case dialect.EndsWith:
		return fragment.Infix("LIKE", lowerExpr, wrapPercent(lowerValue, true, false))
	case dialect.Like:
		return fragment.Infix("LIKE", expr, value)
	case dialect.NotLike:
		return fragment.Infix("NOT LIKE", expr, value)
	case dialect.ILike:
		return fragment.Infix("LIKE", lowerExpr, lowerValue)
	case dialect.Regex, dialect.NotRegex:
		// SQLite has no REGEXP operator without a loaded extension;
		// degrade per spec.md §4.1's "null signals unsupported".
		return nil
	default:
		return nil
	}
}

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
		t = "INTEGER" // SQLite stores timestamps as epoch seconds
	case dialect.CastDecimal:
		t = "REAL"
	case dialect.CastInteger:
		t = "INTEGER"
	default:
		return nil
	}

	return fragment.InfixUnparenthesized(" ", fragment.Lit("CAST("), expr, fragment.Lit("AS "+t+")"))
}

func (Adapter) NullSafeAvg(expr *fragment.Fragment) *fragment.Fragment {
	return fragment.Prefix("IFNULL", fragment.Prefix("AVG", expr), fragment.Lit("0"))
}

func (Adapter) BooleanLiteral(v bool) *fragment.Fragment {
	if v {
		return fragment.Lit("1")
	}

	return fragment.Lit("0")
}

func (Adapter) PrepareValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}

		return 0
	}

	return v
}

func (Adapter) PrepareDateValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Unix()
	}

	return v
}

func (Adapter) IsTimestampInteger() bool { return true }

func (Adapter) CaseWhen(cond, thenExpr, elseExpr *fragment.Fragment) *fragment.Fragment {
	children := []*fragment.Fragment{fragment.Lit("CASE WHEN"), cond, fragment.Lit("THEN"), thenExpr}
	if elseExpr != nil {
		children = append(children, fragment.Lit("ELSE"), elseExpr)
	}

	children = append(children, fragment.Lit("END"))

	return fragment.InfixUnparenthesized(" ", children...)
}

func (Adapter) Interval(n int, unit dialect.IntervalUnit) *fragment.Fragment {
	switch unit {
	case dialect.UnitWeek:
		n *= 7
	case dialect.UnitQuarter:
		n *= 3
	}

	return fragment.Lit(fmt.Sprintf("'%d %s'", n, intervalWord(unit)))
}

func intervalWord(unit dialect.IntervalUnit) string {
	switch unit {
	case dialect.UnitSecond:
		return "seconds"
	case dialect.UnitMinute:
		return "minutes"
	case dialect.UnitHour:
		return "hours"
	case dialect.UnitDay:
		return "days"
	case dialect.UnitWeek:
		return "days" // Interval/DateAdd have already multiplied weeks by 7
	case dialect.UnitMonth:
		return "months"
	case dialect.UnitQuarter:
		return "months" // Interval/DateAdd have already multiplied quarters by 3
	case dialect.UnitYear:
		return "years"
	default:
		return "days"
	}
}

func (a Adapter) DateAdd(expr *fragment.Fragment, n int, unit dialect.IntervalUnit) *fragment.Fragment {
	switch unit {
	case dialect.UnitWeek:
		n *= 7
	case dialect.UnitQuarter:
		n *= 3
	}

	sign := "+"
	if n < 0 {
		sign = ""
	}

	modifier := fmt.Sprintf("'%s%d %s'", sign, n, intervalWord(unit))

	return fragment.Prefix("date", expr, fragment.Lit(modifier))
}

func (Adapter) DateDiff(a, b *fragment.Fragment, unit dialect.IntervalUnit) *fragment.Fragment {
	diffDays := fragment.Infix("-", fragment.Prefix("julianday", b), fragment.Prefix("julianday", a))

	if unit == dialect.UnitDay {
		return diffDays
	}

	return diffDays
}

func (Adapter) TimeDiffSeconds(a, b *fragment.Fragment) *fragment.Fragment {
	diffDays := fragment.Infix("-", fragment.Prefix("julianday", b), fragment.Prefix("julianday", a))
	return fragment.Infix("*", diffDays, fragment.Lit("86400"))
}

func (Adapter) ConditionalAggregate(aggregateCall *fragment.Fragment, innerExpr, cond *fragment.Fragment, rebuild func(*fragment.Fragment) *fragment.Fragment) *fragment.Fragment {
	if cond == nil {
		return aggregateCall
	}

	sqlite := Adapter{}
	filtered := sqlite.CaseWhen(cond, innerExpr, nil)

	return rebuild(filtered)
}

// BuildStddev returns nil: SQLite has no native standard deviation
// aggregate (spec.md §4.1).
func (Adapter) BuildStddev(*fragment.Fragment, bool) *fragment.Fragment { return nil }

// BuildVariance returns nil for the same reason as BuildStddev.
func (Adapter) BuildVariance(*fragment.Fragment, bool) *fragment.Fragment { return nil }

// BuildPercentile returns nil: SQLite has no native percentile aggregate.
func (Adapter) BuildPercentile(*fragment.Fragment, float64) *fragment.Fragment { return nil }

func (Adapter) BuildWindowFunction(spec dialect.WindowFuncSpec) *fragment.Fragment {
	call := windowCall(spec)
	if call == nil {
		return nil
	}

	return fragment.InfixUnparenthesized(" ", call, fragment.Lit("OVER"), buildOver(spec))
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
		pre := "UNBOUNDED PRECEDING"
		if spec.FramePreceding > 0 {
			pre = fmt.Sprintf("%d PRECEDING", spec.FramePreceding)
		}

		fol := "CURRENT ROW"
		if spec.FrameFollowing > 0 {
			fol = fmt.Sprintf("%d FOLLOWING", spec.FrameFollowing)
		}

		parts = append(parts, fragment.Lit(fmt.Sprintf("ROWS BETWEEN %s AND %s", pre, fol)))
	}

	inner := fragment.InfixUnparenthesized(" ", parts...)

	return fragment.InfixUnparenthesized("", fragment.Lit("("), inner, fragment.Lit(")"))
}

// PreprocessTemplate promotes integer division to floating point, the
// concrete example spec.md §4.1's "Template preprocessing" names: SQLite's
// `/` between two integer literals/columns truncates, so `100 / 3` yields
// `33` rather than `33.333...`. Calculated-measure templates commonly
// divide two aggregate measures (e.g. activeCount / count), so this
// rewrites a bare `/` to `* 1.0 /` to force floating-point division.
func (Adapter) PreprocessTemplate(template string) string {
	return insertFloatPromotion(template)
}

func insertFloatPromotion(template string) string {
	out := make([]byte, 0, len(template)+8)

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c == '/' && (i == 0 || template[i-1] != '*') {
			out = append(out, []byte("* 1.0 /")...)
			continue
		}

		out = append(out, c)
	}

	return string(out)
}
