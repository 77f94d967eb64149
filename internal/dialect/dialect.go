// Package dialect implements the Dialect Adapter (spec.md §4.1): one
// strategy per supported engine translating the compiler's
// dialect-agnostic requests (time bucketing, string matching, casting,
// statistical/window functions, intervals) into fragment.Fragment trees.
// A nil return from any Adapter method signals "unsupported — degrade",
// per spec.md §4.1's "null signals unsupported" contract; callers treat a
// nil fragment as the trigger for the UnsupportedFeature recoverable path
// (spec.md §7).
package dialect

import "github.com/accented-ai/semq/internal/fragment"

// Kind identifies a supported engine.
type Kind int

const (
	Postgres Kind = iota
	MySQL
	SQLite
	DuckDB
)

func (k Kind) String() string {
	switch k {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case DuckDB:
		return "duckdb"
	default:
		return "unknown"
	}
}

// Granularity is the closed set of time-bucket sizes (spec.md §3, §4.1).
type Granularity int

const (
	Second Granularity = iota
	Minute
	Hour
	Day
	Week
	Month
	Quarter
	Year
)

// StringOp is the closed set of string-matching filter operators that map
// to dialect-specific SQL (spec.md §4.1).
type StringOp int

const (
	Contains StringOp = iota
	NotContains
	StartsWith
	EndsWith
	Like
	NotLike
	ILike
	Regex
	NotRegex
)

// CastTarget is the closed set of cast target types (spec.md §4.1).
type CastTarget int

const (
	CastTimestamp CastTarget = iota
	CastDecimal
	CastInteger
)

// IntervalUnit is the closed set of units buildInterval/dateAdd accept.
type IntervalUnit int

const (
	UnitSecond IntervalUnit = iota
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
	UnitQuarter
	UnitYear
)

// WindowFuncSpec bundles the parameters buildWindowFunction needs: the
// measure's window type, its argument expression (nil for RowNumber/Rank),
// and the OVER clause pieces.
type WindowFuncSpec struct {
	Type         WindowFuncType
	Arg          *fragment.Fragment
	PartitionBy  []*fragment.Fragment
	OrderBy      []OrderExpr
	Offset       int
	DefaultValue any
	NTile        int
	FramePreceding int
	FrameFollowing int
	HasFrame       bool
}

// WindowFuncType mirrors model.WindowType but lives in this package so
// dialect doesn't import model (keeps the dependency direction leaf-ward).
type WindowFuncType int

const (
	WinLag WindowFuncType = iota
	WinLead
	WinRank
	WinDenseRank
	WinRowNumber
	WinNTile
	WinFirstValue
	WinLastValue
	WinMovingAvg
	WinMovingSum
)

// OrderExpr is one ORDER BY entry inside an OVER clause.
type OrderExpr struct {
	Expr *fragment.Fragment
	Desc bool
}

// Capabilities flags what a dialect can express natively (spec.md §4.1,
// §9). The compiler degrades uniformly when a flag is false rather than
// special-casing each dialect at every call site.
type Capabilities struct {
	SupportsStddev               bool
	SupportsVariance              bool
	SupportsPercentile            bool
	SupportsWindowFunctions       bool
	SupportsFrameClause           bool
	SupportsLateralJoins          bool
	SupportsPercentileSubqueries  bool
}

// Adapter is the per-engine SQL generation strategy, spec.md §4.1.
type Adapter interface {
	Kind() Kind
	Capabilities() Capabilities

	// Quoter returns the fragment.Quoter this dialect renders through —
	// its identifier-quoting style, placeholder syntax, and whether its
	// placeholder syntax supports parameter reuse by position.
	Quoter() fragment.Quoter

	// BuildTimeDimension buckets expr at the given granularity.
	BuildTimeDimension(granularity Granularity, expr *fragment.Fragment) *fragment.Fragment

	// BuildStringCondition builds `expr OP value` for the string operator
	// family (contains/startsWith/like/regex/...).
	BuildStringCondition(expr *fragment.Fragment, op StringOp, value *fragment.Fragment) *fragment.Fragment

	// Cast wraps expr in a dialect-native CAST to target.
	Cast(expr *fragment.Fragment, target CastTarget) *fragment.Fragment

	// NullSafeAvg wraps a sum/count pair (or a raw AVG target) with the
	// dialect's null-coalescing idiom.
	NullSafeAvg(expr *fragment.Fragment) *fragment.Fragment

	// BooleanLiteral renders a boolean constant.
	BooleanLiteral(v bool) *fragment.Fragment

	// PrepareValue converts a filter-bound value into the representation
	// the dialect expects at the wire level (used for e.g. boolean 0/1 vs
	// true/false normalization beyond dates, which go through
	// PrepareDateValue instead).
	PrepareValue(v any) any

	// PrepareDateValue normalizes a date/time value into the dialect's
	// native representation (epoch seconds for SQLite, epoch ms for an
	// integer-ms dialect, ISO8601 string otherwise) — spec.md §4.4
	// normalizeDate.
	PrepareDateValue(v any) any

	// IsTimestampInteger reports whether the dialect stores timestamps as
	// integers (SQLite: epoch seconds) rather than a native temporal type.
	IsTimestampInteger() bool

	// CaseWhen builds a CASE WHEN cond THEN thenExpr ELSE elseExpr END.
	// elseExpr may be nil for an implicit ELSE NULL.
	CaseWhen(cond, thenExpr, elseExpr *fragment.Fragment) *fragment.Fragment

	// Interval builds a literal interval of n units, e.g. "INTERVAL '7 days'".
	Interval(n int, unit IntervalUnit) *fragment.Fragment

	// DateAdd adds (or subtracts, for negative n) an interval to expr.
	DateAdd(expr *fragment.Fragment, n int, unit IntervalUnit) *fragment.Fragment

	// DateDiff returns (b - a) expressed in unit.
	DateDiff(a, b *fragment.Fragment, unit IntervalUnit) *fragment.Fragment

	// TimeDiffSeconds returns (b - a) in whole seconds, used for
	// funnel/cohort conversion-time math.
	TimeDiffSeconds(a, b *fragment.Fragment) *fragment.Fragment

	// ConditionalAggregate wraps an aggregate call with a row filter:
	// FILTER (WHERE cond) where supported, else CASE WHEN inside the
	// aggregate's argument.
	ConditionalAggregate(aggregateCall *fragment.Fragment, innerExpr, cond *fragment.Fragment, rebuild func(filteredExpr *fragment.Fragment) *fragment.Fragment) *fragment.Fragment

	// BuildStddev emits a population/sample standard deviation aggregate,
	// or nil if unsupported.
	BuildStddev(expr *fragment.Fragment, sample bool) *fragment.Fragment

	// BuildVariance mirrors BuildStddev for variance.
	BuildVariance(expr *fragment.Fragment, sample bool) *fragment.Fragment

	// BuildPercentile emits a percentile/median aggregate, or nil.
	BuildPercentile(expr *fragment.Fragment, percentile float64) *fragment.Fragment

	// BuildWindowFunction emits a single "... OVER (...)" expression.
	BuildWindowFunction(spec WindowFuncSpec) *fragment.Fragment

	// PreprocessTemplate applies engine-specific rewrites to a raw
	// calculated-measure template string before tokenization (spec.md
	// §4.1 "Template preprocessing", e.g. SQLite integer-division
	// promotion).
	PreprocessTemplate(template string) string
}
