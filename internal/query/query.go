// Package query holds the SemanticQuery input model (spec.md §3): the
// declarative shape a caller submits to the compiler, before any
// resolution against a registry has happened.
package query

// Granularity is the closed set of time-bucketing units a TimeDimension
// may request.
type Granularity string

const (
	Second  Granularity = "second"
	Minute  Granularity = "minute"
	Hour    Granularity = "hour"
	Day     Granularity = "day"
	Week    Granularity = "week"
	Month   Granularity = "month"
	Quarter Granularity = "quarter"
	Year    Granularity = "year"
)

// TimeDimension requests a time-typed dimension, optionally bucketed by
// Granularity and optionally restricted to DateRange.
type TimeDimension struct {
	Dimension   string      `json:"dimension"`
	Granularity Granularity `json:"granularity,omitempty"` // empty means "no bucketing, raw column"
	DateRange   DateRange   `json:"date_range,omitempty"`
}

// DateRange is either absolute (Start/End set, relative empty), relative
// (Relative set, e.g. "last 7 days"), or entirely unset.
type DateRange struct {
	Relative string `json:"relative,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
}

// IsZero reports whether no date range was supplied.
func (d DateRange) IsZero() bool {
	return d.Relative == "" && d.Start == "" && d.End == ""
}

// Operator is the closed set of filter operators (spec.md §4.4).
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "notEquals"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "notContains"
	OpStartsWith     Operator = "startsWith"
	OpEndsWith       Operator = "endsWith"
	OpLike           Operator = "like"
	OpNotLike        Operator = "notLike"
	OpILike          Operator = "ilike"
	OpRegex          Operator = "regex"
	OpNotRegex       Operator = "notRegex"
	OpGt             Operator = "gt"
	OpGte            Operator = "gte"
	OpLt             Operator = "lt"
	OpLte            Operator = "lte"
	OpSet            Operator = "set"
	OpNotSet         Operator = "notSet"
	OpInDateRange    Operator = "inDateRange"
	OpBeforeDate     Operator = "beforeDate"
	OpAfterDate      Operator = "afterDate"
	OpBetween        Operator = "between"
	OpNotBetween     Operator = "notBetween"
	OpIn             Operator = "in"
	OpNotIn          Operator = "notIn"
	OpIsEmpty        Operator = "isEmpty"
	OpIsNotEmpty     Operator = "isNotEmpty"
	OpArrayContains  Operator = "arrayContains"
	OpArrayContained Operator = "arrayContained"
	OpArrayOverlaps  Operator = "arrayOverlaps"
)

// FilterCondition is either a leaf predicate (Member set, And/Or empty) or
// a logical node (And or Or set, Member empty) — spec.md §3's
// "tree of FilterCondition with and/or internal nodes".
type FilterCondition struct {
	Member    string      `json:"member,omitempty"`
	Operator  Operator    `json:"operator,omitempty"`
	Values    []any       `json:"values,omitempty"`
	DateRange DateRange   `json:"date_range,omitempty"`

	And []FilterCondition `json:"and,omitempty"`
	Or  []FilterCondition `json:"or,omitempty"`
}

// IsLeaf reports whether c is a predicate rather than a logical connective.
func (c FilterCondition) IsLeaf() bool { return len(c.And) == 0 && len(c.Or) == 0 }

// Direction is an ORDER BY entry's sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// OrderEntry is one "field -> asc|desc" pair. Order is a slice rather than
// a map so declaration order survives — spec.md §8 property 8 requires
// ORDER BY determinism that a map could not guarantee.
type OrderEntry struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction,omitempty"`
}

// SemanticQuery is the compiler's sole input (spec.md §3).
type SemanticQuery struct {
	Measures       []string          `json:"measures,omitempty"`
	Dimensions     []string          `json:"dimensions,omitempty"`
	TimeDimensions []TimeDimension   `json:"time_dimensions,omitempty"`
	Filters        []FilterCondition `json:"filters,omitempty"`
	Order          []OrderEntry      `json:"order,omitempty"`
	Limit          *int              `json:"limit,omitempty"`
	Offset         *int              `json:"offset,omitempty"`
}

// AllMembers returns every "Cube.field" reference in q, for up-front
// registry validation (spec.md §3 invariant 1) before planning begins.
func (q SemanticQuery) AllMembers() []string {
	var out []string

	out = append(out, q.Measures...)
	out = append(out, q.Dimensions...)

	for _, td := range q.TimeDimensions {
		out = append(out, td.Dimension)
	}

	for _, o := range q.Order {
		out = append(out, o.Field)
	}

	var walk func(c FilterCondition)
	walk = func(c FilterCondition) {
		if c.Member != "" {
			out = append(out, c.Member)
		}

		for _, child := range c.And {
			walk(child)
		}

		for _, child := range c.Or {
			walk(child)
		}
	}

	for _, f := range q.Filters {
		walk(f)
	}

	return out
}
