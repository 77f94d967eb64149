package builder

import (
	"github.com/accented-ai/semq/internal/calcmeasure"
	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/resolver"
	"github.com/accented-ai/semq/internal/template"
	"github.com/accented-ai/semq/internal/warnlog"
)

// MeasureBuilder resolves measures into aggregate/window/calculated SQL
// fragments (spec.md §4.4 MeasureBuilder).
type MeasureBuilder struct {
	Adapter  dialect.Adapter
	Registry *model.Registry
	Log      *warnlog.Logger
}

// NewMeasureBuilder binds a MeasureBuilder to adapter and reg. log receives
// spec.md §7 UnsupportedFeature warnings for degraded statistical/window
// measures; a nil log is replaced with a default stderr logger.
func NewMeasureBuilder(adapter dialect.Adapter, reg *model.Registry, log *warnlog.Logger) *MeasureBuilder {
	if log == nil {
		log = warnlog.New()
	}

	return &MeasureBuilder{Adapter: adapter, Registry: reg, Log: log}
}

// PostAggregationSplit is categorizeForPostAggregation's output (spec.md
// §4.4): the aggregate measures to compute in the inner query, the
// post-aggregation window measures to compute in the outer query, and the
// base measures the latter reference (which must be auto-added to the
// inner query's SELECT if not already requested).
type PostAggregationSplit struct {
	AggregateMeasures      []string
	PostAggWindowMeasures  []string
	RequiredBaseMeasures   []string
}

// CategorizeForPostAggregation splits requested measure names by kind.
func (b *MeasureBuilder) CategorizeForPostAggregation(requested []string) (PostAggregationSplit, error) {
	var split PostAggregationSplit

	required := make(map[string]bool)

	for _, ref := range requested {
		_, meas, err := b.Registry.ResolveMeasure(ref)
		if err != nil {
			return PostAggregationSplit{}, err
		}

		if model.IsPostAggregationWindow(meas) {
			split.PostAggWindowMeasures = append(split.PostAggWindowMeasures, ref)

			m, _ := model.ParseMember(ref)
			base := m.Cube + "." + meas.WindowConfig.Measure

			if !required[base] {
				required[base] = true
				split.RequiredBaseMeasures = append(split.RequiredBaseMeasures, base)
			}

			continue
		}

		split.AggregateMeasures = append(split.AggregateMeasures, ref)
	}

	return split, nil
}

// ResolvedMeasure is one lazily-built measure: Build resolves it fresh
// within ctx, so the same ResolvedMeasures map can be reused without two
// calls sharing mutable fragment state (spec.md §4.2 isolation, applied to
// calculated-measure builders too).
type ResolvedMeasure struct {
	Ref   string
	Build func(ctx *model.QueryContext) (*fragment.Fragment, error)
}

// ResolveMeasures computes the transitive closure over calculated-measure
// dependencies for requested, topologically orders them, and returns a
// name -> lazy builder map covering the requested measures and the
// calculated measures they depend on. A calculated measure's
// non-calculated dependencies are built on demand by its builder, whether
// or not they were requested themselves.
func (b *MeasureBuilder) ResolveMeasures(requested []string, reachable func(fromCube, toCube string) bool) (map[string]ResolvedMeasure, error) {
	out := make(map[string]ResolvedMeasure)

	var baseRefs []string

	for _, ref := range requested {
		_, meas, err := b.Registry.ResolveMeasure(ref)
		if err != nil {
			return nil, err
		}

		if !model.IsCalculatedMeasure(meas) {
			baseRefs = append(baseRefs, ref)
		}
	}

	for _, ref := range baseRefs {
		ref := ref

		out[ref] = ResolvedMeasure{Ref: ref, Build: func(ctx *model.QueryContext) (*fragment.Fragment, error) {
			return b.BuildAggregate(ref, ctx)
		}}
	}

	var calcRefs []string

	for _, ref := range requested {
		_, meas, err := b.Registry.ResolveMeasure(ref)
		if err != nil {
			return nil, err
		}

		if model.IsCalculatedMeasure(meas) {
			calcRefs = append(calcRefs, ref)
		}
	}

	if len(calcRefs) == 0 {
		return out, nil
	}

	plan, err := calcmeasure.Resolve(b.Registry, calcRefs, reachable)
	if err != nil {
		return nil, err
	}

	for _, ref := range plan.Order {
		ref := ref

		cube, meas, err := b.Registry.ResolveMeasure(ref)
		if err != nil {
			return nil, err
		}

		if !model.IsCalculatedMeasure(meas) {
			if _, exists := out[ref]; !exists {
				out[ref] = ResolvedMeasure{Ref: ref, Build: func(ctx *model.QueryContext) (*fragment.Fragment, error) {
					return b.BuildAggregate(ref, ctx)
				}}
			}

			continue
		}

		m, _ := model.ParseMember(ref)
		tmpl := b.Adapter.PreprocessTemplate(meas.CalculatedSQL)

		out[ref] = ResolvedMeasure{Ref: ref, Build: func(ctx *model.QueryContext) (*fragment.Fragment, error) {
			return template.Substitute(tmpl, func(token string) (*fragment.Fragment, error) {
				depRef := qualify(token, cube.Name)

				if resolved, ok := out[depRef]; ok {
					return resolved.Build(ctx)
				}

				if _, depMeas, err := b.Registry.ResolveMeasure(depRef); err == nil && !model.IsCalculatedMeasure(depMeas) {
					return b.BuildAggregate(depRef, ctx)
				}

				return nil, errs.New("MeasureBuilder.ResolveMeasures", cube.Name, m.Field, errs.ErrUnresolvedMember)
			})
		}}
	}

	return out, nil
}

// BuildAggregate resolves ref (a non-calculated measure) to its aggregate
// (or pre-aggregation window) SQL, applying any declared row filters via
// CASE-WHEN before aggregation.
func (b *MeasureBuilder) BuildAggregate(ref string, ctx *model.QueryContext) (*fragment.Fragment, error) {
	cube, meas, err := b.Registry.ResolveMeasure(ref)
	if err != nil {
		return nil, err
	}

	expr, err := resolver.Resolve(meas.SQL, ctx)
	if err != nil {
		return nil, err
	}

	if len(meas.RowFilters) > 0 && meas.Kind == model.KindAggregate {
		expr, err = b.applyRowFilters(expr, meas, ctx)
		if err != nil {
			return nil, err
		}
	}

	switch meas.Kind {
	case model.KindAggregate:
		return b.buildAggregateType(meas.AggregateType, expr), nil

	case model.KindStatistical:
		return b.buildStatistical(cube, meas, expr), nil

	case model.KindWindow:
		spec, err := b.buildWindowSpec(cube, meas, ctx)
		if err != nil {
			return nil, err
		}

		if !b.Adapter.Capabilities().SupportsWindowFunctions {
			b.Log.UnsupportedFeature(cube.Name+"."+meas.Name, b.Adapter.Kind().String())
			return fragment.Prefix("MAX", fragment.Lit("NULL")), nil
		}

		f := b.Adapter.BuildWindowFunction(spec)
		if f == nil {
			b.Log.UnsupportedFeature(cube.Name+"."+meas.Name, b.Adapter.Kind().String())
			return fragment.Prefix("MAX", fragment.Lit("NULL")), nil
		}

		return f, nil

	default:
		return nil, errs.New("MeasureBuilder.BuildAggregate", cube.Name, meas.Name, errs.ErrUnresolvedMember)
	}
}

func (b *MeasureBuilder) applyRowFilters(expr *fragment.Fragment, meas model.Measure, ctx *model.QueryContext) (*fragment.Fragment, error) {
	conds := make([]*fragment.Fragment, 0, len(meas.RowFilters))

	for _, rf := range meas.RowFilters {
		c, err := resolver.Resolve(rf, ctx)
		if err != nil {
			return nil, err
		}

		conds = append(conds, c)
	}

	cond := fragment.And(conds...)
	if cond == nil {
		return expr, nil
	}

	return b.Adapter.CaseWhen(cond, expr, nil), nil
}

func (b *MeasureBuilder) buildAggregateType(t model.AggregateType, expr *fragment.Fragment) *fragment.Fragment {
	switch t {
	case model.Count:
		return fragment.Prefix("COUNT", expr)
	case model.CountDistinct:
		return fragment.Prefix("COUNT", fragment.Concat(fragment.Lit("DISTINCT "), expr))
	case model.Sum:
		return fragment.Prefix("SUM", expr)
	case model.Avg:
		return b.Adapter.NullSafeAvg(expr)
	case model.Min:
		return fragment.Prefix("MIN", expr)
	case model.Max:
		return fragment.Prefix("MAX", expr)
	case model.Number:
		return expr
	default:
		return nil
	}
}

// buildStatistical resolves a statistical measure to its aggregate SQL, or
// degrades it to a NULL-emitting fragment + logged warning when the target
// dialect lacks the capability (spec.md §7 UnsupportedFeature, §8 scenario
// 5: e.g. Sales.medianPrice on MySQL).
func (b *MeasureBuilder) buildStatistical(cube *model.Cube, meas model.Measure, expr *fragment.Fragment) *fragment.Fragment {
	caps := b.Adapter.Capabilities()

	degrade := func() *fragment.Fragment {
		b.Log.UnsupportedFeature(cube.Name+"."+meas.Name, b.Adapter.Kind().String())
		return fragment.Prefix("MAX", fragment.Lit("NULL"))
	}

	switch meas.StatisticalType {
	case model.Stddev:
		if !caps.SupportsStddev {
			return degrade()
		}

		return b.Adapter.BuildStddev(expr, false)
	case model.StddevSamp:
		if !caps.SupportsStddev {
			return degrade()
		}

		return b.Adapter.BuildStddev(expr, true)
	case model.Variance:
		if !caps.SupportsVariance {
			return degrade()
		}

		return b.Adapter.BuildVariance(expr, false)
	case model.VarianceSamp:
		if !caps.SupportsVariance {
			return degrade()
		}

		return b.Adapter.BuildVariance(expr, true)
	case model.Median:
		if !caps.SupportsPercentile {
			return degrade()
		}

		return b.Adapter.BuildPercentile(expr, 0.5)
	case model.P95:
		if !caps.SupportsPercentile {
			return degrade()
		}

		return b.Adapter.BuildPercentile(expr, 0.95)
	case model.P99:
		if !caps.SupportsPercentile {
			return degrade()
		}

		return b.Adapter.BuildPercentile(expr, 0.99)
	case model.Percentile:
		if !caps.SupportsPercentile {
			return degrade()
		}

		return b.Adapter.BuildPercentile(expr, meas.StatisticalConfig.Percentile)
	default:
		return nil
	}
}

func (b *MeasureBuilder) buildWindowSpec(cube *model.Cube, meas model.Measure, ctx *model.QueryContext) (dialect.WindowFuncSpec, error) {
	cfg := meas.WindowConfig

	partitions := make([]*fragment.Fragment, 0, len(cfg.PartitionBy))

	for _, p := range cfg.PartitionBy {
		dim, ok := cube.Dimension(p)
		if !ok {
			return dialect.WindowFuncSpec{}, errs.New("MeasureBuilder.buildWindowSpec", cube.Name, p, errs.ErrUnknownMember)
		}

		f, err := resolver.Resolve(dim.SQL, ctx)
		if err != nil {
			return dialect.WindowFuncSpec{}, err
		}

		partitions = append(partitions, f)
	}

	orderBy := make([]dialect.OrderExpr, 0, len(cfg.OrderBy))

	for _, o := range cfg.OrderBy {
		dim, ok := cube.Dimension(o.Member)
		if !ok {
			return dialect.WindowFuncSpec{}, errs.New("MeasureBuilder.buildWindowSpec", cube.Name, o.Member, errs.ErrUnknownMember)
		}

		f, err := resolver.Resolve(dim.SQL, ctx)
		if err != nil {
			return dialect.WindowFuncSpec{}, err
		}

		orderBy = append(orderBy, dialect.OrderExpr{Expr: f, Desc: o.Desc})
	}

	var arg *fragment.Fragment

	if meas.SQL != nil {
		f, err := resolver.Resolve(meas.SQL, ctx)
		if err != nil {
			return dialect.WindowFuncSpec{}, err
		}

		arg = f
	}

	spec := dialect.WindowFuncSpec{
		Type:         windowFuncType(meas.WindowType),
		Arg:          arg,
		PartitionBy:  partitions,
		OrderBy:      orderBy,
		Offset:       cfg.Offset,
		DefaultValue: cfg.DefaultValue,
		NTile:        cfg.NTile,
	}

	if cfg.Frame != nil {
		spec.HasFrame = true
		spec.FramePreceding = cfg.Frame.PrecedingRows
		spec.FrameFollowing = cfg.Frame.FollowingRows
	}

	return spec, nil
}

func windowFuncType(t model.WindowType) dialect.WindowFuncType {
	switch t {
	case model.Lag:
		return dialect.WinLag
	case model.Lead:
		return dialect.WinLead
	case model.Rank:
		return dialect.WinRank
	case model.DenseRank:
		return dialect.WinDenseRank
	case model.RowNumber:
		return dialect.WinRowNumber
	case model.NTile:
		return dialect.WinNTile
	case model.FirstValue:
		return dialect.WinFirstValue
	case model.LastValue:
		return dialect.WinLastValue
	case model.MovingAvg:
		return dialect.WinMovingAvg
	case model.MovingSum:
		return dialect.WinMovingSum
	default:
		return dialect.WinRowNumber
	}
}

// qualify turns a bare template token into "Cube.field" using defaultCube
// when the token carries no dot (spec.md §3's "{member}/{Cube.member}").
func qualify(token, defaultCube string) string {
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			return token
		}
	}

	return defaultCube + "." + token
}

// ReaggregateFromCTE re-aggregates a measure already pre-aggregated inside
// a CTE column (cteColumn), per spec.md §4.4's CTE-aware HAVING rule: sum
// for count/sum/countDistinct, adapter null-safe avg for avg, MIN/MAX for
// min/max. Calculated measures must not reach this path — they are
// recomputed from their base dependencies' CTE columns instead (spec.md
// §4.4 "never summed or averaged over pre-computed ratios").
func (b *MeasureBuilder) ReaggregateFromCTE(meas model.Measure, cteColumn *fragment.Fragment) (*fragment.Fragment, error) {
	if meas.Kind != model.KindAggregate {
		return nil, errs.WrapError("MeasureBuilder.ReaggregateFromCTE", errs.ErrUnresolvedMember)
	}

	switch meas.AggregateType {
	case model.Count, model.Sum, model.CountDistinct:
		return fragment.Prefix("SUM", cteColumn), nil
	case model.Avg:
		return b.Adapter.NullSafeAvg(cteColumn), nil
	case model.Min:
		return fragment.Prefix("MIN", cteColumn), nil
	case model.Max:
		return fragment.Prefix("MAX", cteColumn), nil
	default:
		return cteColumn, nil
	}
}
