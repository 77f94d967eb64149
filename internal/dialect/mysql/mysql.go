// Package mysql implements dialect.Adapter for MySQL and SingleStore (the
// two engines spec.md §1 groups together — SingleStore is wire- and
// syntax-compatible with MySQL for every operation this adapter emits).
//
// The package also demonstrates the out-of-core executor wiring named in
// SPEC_FULL.md's DOMAIN STACK: Open uses the real go-sql-driver/mysql
// driver via database/sql. The compiler itself never calls Open — no
// package under internal/assembler, internal/planner, or internal/cte
// imports database/sql — but a caller executing the compiled SQL needs a
// real driver, and grounding that wiring here keeps the dialect package
// self-contained.
package mysql

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/fragment"
)

// Open returns a *sql.DB wired to the real MySQL driver. It exists purely
// to exercise github.com/go-sql-driver/mysql from this module; the
// compiler performs no I/O of its own (spec.md §5).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	return db, nil
}

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (Adapter) Kind() dialect.Kind { return dialect.MySQL }

func (Adapter) Quoter() fragment.Quoter { return backtickQuoter{} }

func (Adapter) Capabilities() dialect.Capabilities {
	return dialect.Capabilities{
		SupportsStddev:          true,
		SupportsVariance:        true,
		SupportsPercentile:      false,
		SupportsWindowFunctions: true,
		SupportsFrameClause:     true,
		SupportsLateralJoins:    false,
	}
}

func (Adapter) BuildTimeDimension(g dialect.Granularity, expr *fragment.Fragment) *fragment.Fragment {
	switch g {
	case dialect.Second:
		return fragment.Prefix("DATE_FORMAT", expr, fragment.Lit("'%Y-%m-%d %H:%i:%s'"))
	case dialect.Minute:
		return fragment.Prefix("DATE_FORMAT", expr, fragment.Lit("'%Y-%m-%d %H:%i:00'"))
	case dialect.Hour:
		return fragment.Prefix("DATE_FORMAT", expr, fragment.Lit("'%Y-%m-%d %H:00:00'"))
	case dialect.Day:
		return fragment.Prefix("DATE_FORMAT", expr, fragment.Lit("'%Y-%m-%d 00:00:00'"))
	case dialect.Week:
		// MySQL weeks default to Sunday-start; subtract WEEKDAY() days to
		// anchor Monday, matching spec.md §4.4's Monday–Sunday convention.
		// expr is always a plain column/alias reference by the time a
		// time-dimension is bucketed, so rendering it once to text here
		// (rather than threading a Fragment through a second DATE_SUB
		// call) is safe and keeps this expression's unusual shape
		// (the same sub-expression appears twice) readable.
		exprSQL := renderPlain(expr)
		return fragment.Lit(fmt.Sprintf("DATE_SUB(DATE(%s), INTERVAL WEEKDAY(%s) DAY)", exprSQL, exprSQL))
	case dialect.Month:
		return fragment.Prefix("DATE_FORMAT", expr, fragment.Lit("'%Y-%m-01'"))
	case dialect.Quarter:
		exprSQL := renderPlain(expr)
		return fragment.Lit(fmt.Sprintf("MAKEDATE(YEAR(%s), 1) + INTERVAL (QUARTER(%s) - 1) QUARTER", exprSQL, exprSQL))
	case dialect.Year:
		return fragment.Prefix("DATE_FORMAT", expr, fragment.Lit("'%Y-01-01'"))
	default:
		return nil
	}
}

// renderPlain renders a fragment that is known to contain no Param leaves
// (a plain column/identifier expression) directly to SQL text, for the rare
// cases — MySQL's week/quarter bucketing — where the same sub-expression
// must be textually repeated inside a single generated literal.
func renderPlain(f *fragment.Fragment) string {
	sql, _ := fragment.Render(f, backtickQuoter{})
	return sql
}

type backtickQuoter struct{}

func (backtickQuoter) QuoteIdentifier(name string) string { return "`" + name + "`" }
func (backtickQuoter) Placeholder(int) string              { return "?" }

// ReusesParams is false: MySQL's "?" placeholders are purely positional,
// each consuming a fresh bind slot, so a value referenced twice is bound
// twice.
func (backtickQuoter) ReusesParams() bool { return false }

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
	case dialect.Regex:
		return fragment.Infix("REGEXP", expr, value)
	case dialect.NotRegex:
		return fragment.Infix("NOT REGEXP", expr, value)
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

	return fragment.Prefix("CONCAT", parts...)
}

func (Adapter) Cast(expr *fragment.Fragment, target dialect.CastTarget) *fragment.Fragment {
	var t string

	switch target {
	case dialect.CastTimestamp:
		t = "DATETIME"
	case dialect.CastDecimal:
		t = "DECIMAL(18,4)"
	case dialect.CastInteger:
		t = "SIGNED"
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
		return t.UTC().Format("2006-01-02 15:04:05.000")
	}

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
	return fragment.Lit(fmt.Sprintf("INTERVAL %d %s", n, intervalUnitName(unit)))
}

func intervalUnitName(unit dialect.IntervalUnit) string {
	switch unit {
	case dialect.UnitSecond:
		return "SECOND"
	case dialect.UnitMinute:
		return "MINUTE"
	case dialect.UnitHour:
		return "HOUR"
	case dialect.UnitDay:
		return "DAY"
	case dialect.UnitWeek:
		return "WEEK"
	case dialect.UnitMonth:
		return "MONTH"
	case dialect.UnitQuarter:
		return "QUARTER"
	case dialect.UnitYear:
		return "YEAR"
	default:
		return "DAY"
	}
}

func (a Adapter) DateAdd(expr *fragment.Fragment, n int, unit dialect.IntervalUnit) *fragment.Fragment {
	if n >= 0 {
		return fragment.Prefix("DATE_ADD", expr, a.Interval(n, unit))
	}

	return fragment.Prefix("DATE_SUB", expr, a.Interval(-n, unit))
}

func (Adapter) DateDiff(a, b *fragment.Fragment, unit dialect.IntervalUnit) *fragment.Fragment {
	if unit == dialect.UnitDay {
		return fragment.Prefix("DATEDIFF", b, a)
	}

	return fragment.Prefix("TIMESTAMPDIFF", fragment.Lit(intervalUnitName(unit)), a, b)
}

func (Adapter) TimeDiffSeconds(a, b *fragment.Fragment) *fragment.Fragment {
	return fragment.Prefix("TIMESTAMPDIFF", fragment.Lit("SECOND"), a, b)
}

func (Adapter) ConditionalAggregate(aggregateCall *fragment.Fragment, innerExpr, cond *fragment.Fragment, rebuild func(*fragment.Fragment) *fragment.Fragment) *fragment.Fragment {
	// MySQL has no FILTER (WHERE ...) clause; wrap the aggregate's inner
	// expression with CASE WHEN instead (spec.md §4.1 conditional
	// aggregation fallback).
	if cond == nil {
		return aggregateCall
	}

	mysql := Adapter{}
	filtered := mysql.CaseWhen(cond, innerExpr, nil)

	return rebuild(filtered)
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

// BuildPercentile returns nil: MySQL has no native percentile/median
// aggregate (spec.md §4.1). Callers degrade to the MAX(NULL)-with-warning
// path (spec.md §4.4, §7 UnsupportedFeature, §8 scenario 5).
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

// PreprocessTemplate promotes integer division in a calculated-measure
// template (`a / b`) to floating-point division the way spec.md §4.1 calls
// for on engines whose `/` truncates between integer operands — MySQL
// itself performs decimal division by default, so no rewrite is required,
// but the hook is kept symmetrical with sqlite's so callers never
// special-case which dialect needs it.
func (Adapter) PreprocessTemplate(template string) string { return template }
