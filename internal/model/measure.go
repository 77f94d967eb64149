package model

// AggregateType is the closed set of simple aggregate measure types.
type AggregateType int

const (
	Count AggregateType = iota
	CountDistinct
	Sum
	Avg
	Min
	Max
	Number
)

// StatisticalType is the closed set of statistical measure types.
type StatisticalType int

const (
	Stddev StatisticalType = iota
	StddevSamp
	Variance
	VarianceSamp
	Median
	P95
	P99
	Percentile
)

// WindowType is the closed set of window function measure types, shared
// between pre-aggregation (per-row) and post-aggregation (over an
// aggregated CTE) windows — spec.md §3 distinguishes them by whether
// WindowConfig.Measure is set.
type WindowType int

const (
	Lag WindowType = iota
	Lead
	Rank
	DenseRank
	RowNumber
	NTile
	FirstValue
	LastValue
	MovingAvg
	MovingSum
)

// MeasureKind discriminates which of the five measure shapes spec.md §3
// describes a Measure value represents.
type MeasureKind int

const (
	KindAggregate MeasureKind = iota
	KindStatistical
	KindWindow
	KindCalculated
)

// RowFilter is a closure producing a boolean predicate applied via
// CASE-WHEN before aggregation (spec.md §3, Aggregate measure row filters).
type RowFilter = ExpressionResolver

// StatisticalConfig configures a Statistical measure.
type StatisticalConfig struct {
	UseSample  bool
	Percentile float64 // only meaningful when Type == Percentile
}

// WindowFrame bounds a window function's frame clause, e.g. for
// MovingAvg/MovingSum.
type WindowFrame struct {
	PrecedingRows int // 0 means unbounded
	FollowingRows int
}

// WindowConfig configures a Window or Post-aggregation Window measure.
type WindowConfig struct {
	PartitionBy  []string
	OrderBy      []OrderSpec
	Offset       int
	DefaultValue any
	NTile        int
	Frame        *WindowFrame
	// Measure, when non-empty, names the base aggregate measure this
	// window runs over, marking it a Post-aggregation Window (spec.md §3).
	Measure string
}

// OrderSpec is a single ORDER BY entry used inside a window's OVER clause.
type OrderSpec struct {
	Member string
	Desc   bool
}

// Measure is one of Aggregate, Statistical, Window, Post-aggregation
// Window, or Calculated (spec.md §3). A single struct models all five
// shapes; Kind plus the relevant optional fields discriminate which one a
// given value is.
type Measure struct {
	Name string
	Kind MeasureKind

	// Aggregate
	AggregateType AggregateType
	SQL           ExpressionResolver
	RowFilters    []RowFilter

	// Statistical
	StatisticalType   StatisticalType
	StatisticalConfig StatisticalConfig

	// Window / Post-aggregation Window
	WindowType   WindowType
	WindowConfig WindowConfig

	// Calculated
	CalculatedSQL string // template with {member} / {Cube.member} tokens
}

// IsWindowFunction reports whether kind is one of the window measure
// types, independent of pre- vs post-aggregation (spec.md §4.4 MeasureBuilder
// classification utilities).
func IsWindowFunction(k MeasureKind) bool { return k == KindWindow }

// IsPostAggregationWindow reports whether m is a window measure whose
// WindowConfig.Measure names a base aggregate.
func IsPostAggregationWindow(m Measure) bool {
	return m.Kind == KindWindow && m.WindowConfig.Measure != ""
}

// IsCalculatedMeasure reports whether m is a Calculated measure.
func IsCalculatedMeasure(m Measure) bool { return m.Kind == KindCalculated }
