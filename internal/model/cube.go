// Package model holds the semantic-model data types spec.md §3 defines:
// Cube, Dimension, Measure, CubeJoin, Registry, and the per-request
// QueryContext threaded into every cube's relation resolver.
package model

import "github.com/accented-ai/semq/internal/fragment"

// DimensionType is the closed set of dimension value types (spec.md §3).
type DimensionType int

const (
	DimensionString DimensionType = iota
	DimensionNumber
	DimensionTime
	DimensionBoolean
)

// Relation is the row-level-secured base relation a cube's sql(ctx)
// resolver produces: an abstract table reference plus an optional
// security predicate.
type Relation struct {
	From  *fragment.Fragment // table/subquery reference, e.g. fragment.Ident("employees")
	Where *fragment.Fragment // nil if the cube has no row-level security
}

// RelationResolver is the interface form of the source model's
// `sql(ctx) -> {from, where?}` closure (spec.md §9: "closures over context
// become small interface objects"). Implementations must be pure
// functions of ctx — the compiler may invoke Resolve several times within
// one compilation and never caches the result across QueryContexts.
type RelationResolver interface {
	Resolve(ctx *QueryContext) (Relation, error)
}

// RelationFunc adapts a plain function to RelationResolver, mirroring how
// Go code commonly promotes a closure to a small interface (http.HandlerFunc
// being the canonical stdlib example).
type RelationFunc func(ctx *QueryContext) (Relation, error)

func (f RelationFunc) Resolve(ctx *QueryContext) (Relation, error) { return f(ctx) }

// Dimension is a named grouping/filtering field on a cube.
type Dimension struct {
	Name       string
	Type       DimensionType
	SQL        ExpressionResolver
	PrimaryKey bool
}

// ExpressionResolver is the interface form of a dimension/measure `sql`
// expression: either a constant column reference or a closure over ctx.
// Column is provided as a convenience for the overwhelmingly common case
// of "this dimension is just this column" so callers don't have to wrap a
// closure around a constant.
type ExpressionResolver interface {
	Resolve(ctx *QueryContext) (*fragment.Fragment, error)
}

// Column is an ExpressionResolver that always resolves to the same
// identifier, independent of ctx.
type Column string

func (c Column) Resolve(*QueryContext) (*fragment.Fragment, error) {
	return fragment.Ident(string(c)), nil
}

// ExpressionFunc adapts a plain function to ExpressionResolver.
type ExpressionFunc func(ctx *QueryContext) (*fragment.Fragment, error)

func (f ExpressionFunc) Resolve(ctx *QueryContext) (*fragment.Fragment, error) { return f(ctx) }

// Relationship is the closed set of join relationship kinds (spec.md §3).
type Relationship int

const (
	BelongsTo Relationship = iota
	HasOne
	HasMany
	BelongsToMany
)

// ManyToMany describes the junction table for a belongsToMany join.
type ManyToMany struct {
	Table       string
	SourceKey   []string
	TargetKey   []string
	SecuritySQL RelationResolver // optional; junction's own row-level security
}

// JoinColumn is one (sourceCol, targetCol, comparator) triple of a join's
// `on[]` list. Comparator defaults to "=" when empty.
type JoinColumn struct {
	SourceColumn string
	TargetColumn string
	Comparator   string
}

// SQLJoinType is the explicit override for a join's emitted SQL JOIN
// keyword; when unset the default from spec.md §3 applies
// (belongsTo -> INNER, everything else -> LEFT).
type SQLJoinType string

const (
	JoinTypeDefault SQLJoinType = ""
	JoinTypeInner   SQLJoinType = "INNER JOIN"
	JoinTypeLeft    SQLJoinType = "LEFT JOIN"
)

// CubeJoin is a directed relation from the owning cube to TargetCube.
type CubeJoin struct {
	TargetCube   string
	Relationship Relationship
	On           []JoinColumn
	SQLJoinType  SQLJoinType
	Through      *ManyToMany
}

// DefaultJoinType resolves the spec.md §3 default when SQLJoinType is unset.
func (j CubeJoin) DefaultJoinType() SQLJoinType {
	if j.SQLJoinType != JoinTypeDefault {
		return j.SQLJoinType
	}

	if j.Relationship == BelongsTo {
		return JoinTypeInner
	}

	return JoinTypeLeft
}

// Cube is a named unit of the semantic model.
type Cube struct {
	Name       string
	SQL        RelationResolver
	Dimensions map[string]Dimension
	Measures   map[string]Measure
	Joins      []CubeJoin
}

// Dimension looks up a dimension by local name.
func (c *Cube) Dimension(name string) (Dimension, bool) {
	d, ok := c.Dimensions[name]
	return d, ok
}

// Measure looks up a measure by local name.
func (c *Cube) Measure(name string) (Measure, bool) {
	m, ok := c.Measures[name]
	return m, ok
}

// JoinTo returns the CubeJoin targeting cubeName, if one is declared.
func (c *Cube) JoinTo(cubeName string) (CubeJoin, bool) {
	for _, j := range c.Joins {
		if j.TargetCube == cubeName {
			return j, true
		}
	}

	return CubeJoin{}, false
}
