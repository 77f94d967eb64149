// Package semq is the compiler's public surface (spec.md §6, C10): a thin
// façade over internal/assembler that callers outside this module import.
// Nothing here does compilation work itself — it exists to keep the
// internal/ packages free to change shape without breaking callers, the
// same boundary the teacher draws between its pkg/database (the stable,
// importable surface) and internal/extractor,internal/generator (the
// implementation).
package semq

import (
	"time"

	"github.com/accented-ai/semq/internal/assembler"
	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/query"
	"github.com/accented-ai/semq/internal/warnlog"
)

// Re-exported so callers building a SemanticQuery or a Registry never need
// to import internal/ packages directly.
type (
	SemanticQuery  = query.SemanticQuery
	FilterCondition = query.FilterCondition
	TimeDimension  = query.TimeDimension
	DateRange      = query.DateRange
	OrderEntry     = query.OrderEntry
	Operator       = query.Operator
	Direction      = query.Direction
	Granularity    = query.Granularity

	Registry     = model.Registry
	Cube         = model.Cube
	QueryContext = model.QueryContext
	Adapter      = dialect.Adapter

	Result     = assembler.Result
	Annotation = assembler.Annotation
)

// Filter operator constants, re-exported for callers assembling queries.
const (
	OpEquals         = query.OpEquals
	OpNotEquals      = query.OpNotEquals
	OpContains       = query.OpContains
	OpNotContains    = query.OpNotContains
	OpStartsWith     = query.OpStartsWith
	OpEndsWith       = query.OpEndsWith
	OpLike           = query.OpLike
	OpNotLike        = query.OpNotLike
	OpILike          = query.OpILike
	OpRegex          = query.OpRegex
	OpNotRegex       = query.OpNotRegex
	OpGt             = query.OpGt
	OpGte            = query.OpGte
	OpLt             = query.OpLt
	OpLte            = query.OpLte
	OpSet            = query.OpSet
	OpNotSet         = query.OpNotSet
	OpInDateRange    = query.OpInDateRange
	OpBeforeDate     = query.OpBeforeDate
	OpAfterDate      = query.OpAfterDate
	OpBetween        = query.OpBetween
	OpNotBetween     = query.OpNotBetween
	OpIn             = query.OpIn
	OpNotIn          = query.OpNotIn
	OpIsEmpty        = query.OpIsEmpty
	OpIsNotEmpty     = query.OpIsNotEmpty
	OpArrayContains  = query.OpArrayContains
	OpArrayContained = query.OpArrayContained
	OpArrayOverlaps  = query.OpArrayOverlaps

	Asc  = query.Asc
	Desc = query.Desc
)

// NewQueryContext builds a QueryContext; db and securityContext are both
// opaque to the compiler (spec.md §3).
func NewQueryContext(db, securityContext any) *QueryContext {
	return model.NewQueryContext(db, securityContext)
}

// NewRegistry builds a Registry from an ordered list of cubes.
func NewRegistry(cubes ...*Cube) (*Registry, error) {
	return model.NewRegistry(cubes...)
}

// Compiler binds a Registry and a dialect Adapter for repeated Compile/
// Explain calls, mirroring the teacher's pattern of a long-lived handle
// (pkg/database.Pool) constructed once and reused per request.
type Compiler struct {
	reg     *Registry
	adapter Adapter
	log     *warnlog.Logger
}

// New builds a Compiler against reg, rendering SQL for adapter's dialect.
func New(reg *Registry, adapter Adapter) *Compiler {
	return &Compiler{reg: reg, adapter: adapter, log: warnlog.New()}
}

// EnableDebugLog turns on verbose per-compile debug logging (spec.md §7).
func (c *Compiler) EnableDebugLog() { c.log.EnableDebug() }

// Compile validates q against the registry, plans it, and renders the
// final parameterized SQL statement for ctx (spec.md §6's Compile
// operation). now anchors relative date ranges; pass time.Now() unless a
// fixed clock is needed (e.g. tests, scheduled reports re-run at a pinned
// instant).
func (c *Compiler) Compile(q SemanticQuery, ctx *QueryContext, now time.Time) (Result, error) {
	return assembler.Compile(c.reg, q, ctx, c.adapter, now, c.log)
}

// Explain compiles q and returns only its Annotation — the chosen primary
// cube, direct joins, and pre-aggregation CTE aliases — without requiring
// the caller to also consume (and discard) the rendered SQL. Useful for a
// "dry run" surface that inspects a query's plan before running it.
func (c *Compiler) Explain(q SemanticQuery, ctx *QueryContext, now time.Time) (Annotation, error) {
	res, err := c.Compile(q, ctx, now)
	if err != nil {
		return Annotation{}, err
	}

	return res.Annotation, nil
}
