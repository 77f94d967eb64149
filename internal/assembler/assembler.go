// Package assembler implements the Query Executor / Assembler (spec.md
// §4.9, C9): the pipeline orchestrating planner -> CTE builder -> main
// SELECT -> GROUP BY -> HAVING -> ORDER BY -> LIMIT/OFFSET, producing the
// final parameterized SQL statement.
package assembler

import (
	"sort"
	"time"

	"github.com/accented-ai/semq/internal/builder"
	"github.com/accented-ai/semq/internal/cte"
	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/filtercache"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/planner"
	"github.com/accented-ai/semq/internal/query"
	"github.com/accented-ai/semq/internal/resolver"
	"github.com/accented-ai/semq/internal/warnlog"
)

// Result is the compiler's output (spec.md §6): the rendered statement,
// its ordered bind parameters, and an annotation describing the plan.
type Result struct {
	SQL        string
	Params     []any
	Annotation Annotation
}

// Annotation describes the chosen plan for callers that want to inspect
// or log it without re-running the compiler (spec.md §6 "dryRun/explain").
type Annotation struct {
	PrimaryCube string
	JoinCubes   []string
	CTEAliases  []string
}

// Compile runs the full pipeline for q against reg under ctx, using
// adapter for dialect-specific SQL generation. now anchors relative date
// ranges (spec.md §4.4); log receives recoverable-warning notifications
// (spec.md §7 UnsupportedFeature/InvalidInputValue) and may be nil.
func Compile(reg *model.Registry, q query.SemanticQuery, ctx *model.QueryContext, adapter dialect.Adapter, now time.Time, log *warnlog.Logger) (Result, error) {
	if err := validateQuery(reg, q); err != nil {
		return Result{}, err
	}

	if log == nil {
		log = warnlog.New()
	}

	mb := builder.NewMeasureBuilder(adapter, reg, log)
	fb := builder.NewFilterBuilder(adapter, now)
	gb := builder.NewGroupByBuilder()
	cache := filtercache.New()

	referencedCubes := cubesOf(q)

	measuresByCube := map[string][]string{}
	for _, ref := range q.Measures {
		m, err := model.ParseMember(ref)
		if err != nil {
			return Result{}, err
		}

		measuresByCube[m.Cube] = append(measuresByCube[m.Cube], ref)
	}

	plan, err := planner.Plan(reg, referencedCubes, measuresByCube)
	if err != nil {
		return Result{}, err
	}

	cteCubes := make(map[string]bool, len(plan.PreAggregationCTEs))
	for _, c := range plan.PreAggregationCTEs {
		cteCubes[c.Cube] = true
	}

	reachable := func(from, to string) bool { return planner.Reachable(reg, from, to) }

	builtCTEs := make([]cte.Built, 0, len(plan.PreAggregationCTEs))

	for _, p := range plan.PreAggregationCTEs {
		ownFilters, err := filtersForCube(reg, fb, cache, q.Filters, p.Cube, false, now)
		if err != nil {
			return Result{}, err
		}

		ownFilters = append(ownFilters, timeFiltersForCube(fb, q.TimeDimensions, reg, p.Cube)...)

		var propagating []*fragment.Fragment

		for _, otherCube := range p.PropagatingFrom {
			pf, err := buildPropagatingFilter(reg, ctx, fb, cache, q.Filters, otherCube, p.Cube, now)
			if err != nil {
				return Result{}, err
			}

			if pf != nil {
				propagating = append(propagating, pf)
			}
		}

		built, err := cte.Build(p, reg, ctx, mb, reachable, ownFilters, propagating)
		if err != nil {
			return Result{}, err
		}

		builtCTEs = append(builtCTEs, built)
	}

	split, err := mb.CategorizeForPostAggregation(q.Measures)
	if err != nil {
		return Result{}, err
	}

	innerMeasures := split.AggregateMeasures
	for _, base := range split.RequiredBaseMeasures {
		innerMeasures = append(innerMeasures, base)
	}

	outerInnerMeasures := make([]string, 0, len(innerMeasures))

	for _, ref := range innerMeasures {
		m, _ := model.ParseMember(ref)
		if !cteCubes[m.Cube] {
			outerInnerMeasures = append(outerInnerMeasures, ref)
		}
	}

	resolved, err := mb.ResolveMeasures(outerInnerMeasures, reachable)
	if err != nil {
		return Result{}, err
	}

	var selectList []*fragment.Fragment
	var dimExprs []*fragment.Fragment

	for _, ref := range q.Dimensions {
		m, dim, err := reg.ResolveDimension(ref)
		if err != nil {
			return Result{}, err
		}

		if cteCubes[m.Name] {
			continue // already selected by the CTE, referenced via its alias column at the SQL layer
		}

		f, err := resolver.ResolveDimension(dim, ctx)
		if err != nil {
			return Result{}, err
		}

		selectList = append(selectList, fragment.As(f, ref))
		dimExprs = append(dimExprs, f)
	}

	dtb := builder.NewDateTimeBuilder(adapter)

	for _, td := range q.TimeDimensions {
		m, dim, err := reg.ResolveDimension(td.Dimension)
		if err != nil {
			return Result{}, err
		}

		if cteCubes[m.Name] {
			continue
		}

		base, err := resolver.ResolveDimension(dim, ctx)
		if err != nil {
			return Result{}, err
		}

		f := dtb.BuildTimeDimensionExpression(base, string(td.Granularity))
		if f == nil {
			log.UnsupportedFeature("buildTimeDimension:"+string(td.Granularity), adapter.Kind().String())
			f = base
		}

		selectList = append(selectList, fragment.As(f, td.Dimension))
		dimExprs = append(dimExprs, f)
	}

	for _, ref := range outerInnerMeasures {
		rm, ok := resolved[ref]
		if !ok {
			continue
		}

		f, err := rm.Build(ctx)
		if err != nil {
			return Result{}, err
		}

		selectList = append(selectList, fragment.As(f, ref))
	}

	hasAggregates := len(outerInnerMeasures) > 0 || len(split.PostAggWindowMeasures) > 0

	primaryCube := reg.MustCube(plan.PrimaryCube)
	primaryRel, err := resolver.ResolveRelation(primaryCube.SQL, ctx)
	if err != nil {
		return Result{}, err
	}

	from := primaryRel.From

	var whereParts []*fragment.Fragment
	whereParts = append(whereParts, primaryRel.Where)

	for _, jc := range plan.JoinCubes {
		joinedCube := reg.MustCube(jc.Cube)

		joinedRel, err := resolver.ResolveRelation(joinedCube.SQL, ctx)
		if err != nil {
			return Result{}, err
		}

		whereParts = append(whereParts, joinedRel.Where)

		if jc.Join.Through != nil && jc.Join.Through.SecuritySQL != nil {
			secRel, err := resolver.ResolveRelation(jc.Join.Through.SecuritySQL, ctx)
			if err != nil {
				return Result{}, err
			}

			whereParts = append(whereParts, secRel.Where)
		}
	}

	for _, c := range referencedCubes {
		if cteCubes[c] || c == plan.PrimaryCube {
			continue
		}

		isJoinCube := false

		for _, jc := range plan.JoinCubes {
			if jc.Cube == c {
				isJoinCube = true
			}
		}

		if !isJoinCube {
			continue
		}

		fs, err := filtersForCube(reg, fb, cache, q.Filters, c, false, now)
		if err != nil {
			return Result{}, err
		}

		whereParts = append(whereParts, fs...)
		whereParts = append(whereParts, timeFiltersForCube(fb, q.TimeDimensions, reg, c)...)
	}

	primaryFilters, err := filtersForCube(reg, fb, cache, q.Filters, plan.PrimaryCube, false, now)
	if err != nil {
		return Result{}, err
	}

	whereParts = append(whereParts, primaryFilters...)
	whereParts = append(whereParts, timeFiltersForCube(fb, q.TimeDimensions, reg, plan.PrimaryCube)...)

	where := fragment.And(whereParts...)

	groupBy := gb.BuildOuter(dimExprs, hasAggregates)

	having, err := havingFor(reg, fb, mb, q.Filters, ctx, now)
	if err != nil {
		return Result{}, err
	}

	orderBy, err := buildOrderBy(q, selectList)
	if err != nil {
		return Result{}, err
	}

	limit, offset, err := resolveLimitOffset(q.Limit, q.Offset)
	if err != nil {
		return Result{}, err
	}

	stmt := assembleStatement(ctx, builtCTEs, selectList, from, plan, reg, where, groupBy, having, orderBy, limit, offset)

	sql, params := fragment.Render(stmt, adapter.Quoter())

	ann := Annotation{PrimaryCube: plan.PrimaryCube}
	for _, jc := range plan.JoinCubes {
		ann.JoinCubes = append(ann.JoinCubes, jc.Cube)
	}

	for _, c := range builtCTEs {
		ann.CTEAliases = append(ann.CTEAliases, c.Alias)
	}

	return Result{SQL: sql, Params: params, Annotation: ann}, nil
}

// assembleStatement stitches the WITH clause (one entry per pre-aggregation
// CTE), the main SELECT/FROM/JOIN/WHERE/GROUP BY/HAVING/ORDER BY/LIMIT
// /OFFSET into one fragment tree, using fragment.Concat/Lit for the
// keyword scaffolding between already-built sub-fragments.
func assembleStatement(
	ctx *model.QueryContext,
	ctes []cte.Built,
	selectList []*fragment.Fragment,
	from *fragment.Fragment,
	plan *planner.Plan,
	reg *model.Registry,
	where *fragment.Fragment,
	groupBy []*fragment.Fragment,
	having *fragment.Fragment,
	orderBy []*fragment.Fragment,
	limit, offset *int,
) *fragment.Fragment {
	var parts []*fragment.Fragment

	if len(ctes) > 0 {
		parts = append(parts, fragment.Lit("WITH "))

		for i, c := range ctes {
			if i > 0 {
				parts = append(parts, fragment.Lit(", "))
			}

			body := []*fragment.Fragment{fragment.Lit("SELECT "), commaJoin(c.Select), fragment.Lit(" FROM "), c.From}

			if c.Where != nil {
				body = append(body, fragment.Lit(" WHERE "), c.Where)
			}

			if len(c.GroupBy) > 0 {
				body = append(body, fragment.Lit(" GROUP BY "), commaJoin(c.GroupBy))
			}

			parts = append(parts, fragment.Lit(`"`+c.Alias+`" AS (`), fragment.Concat(body...), fragment.Lit(")"))
		}

		parts = append(parts, fragment.Lit(" "))
	}

	parts = append(parts, fragment.Lit("SELECT "), commaJoin(selectList), fragment.Lit(" FROM "), from)

	for _, jc := range plan.JoinCubes {
		joinType := string(jc.Join.DefaultJoinType())
		if joinType == "" {
			joinType = "LEFT JOIN"
		}

		if jc.Join.Through != nil {
			parts = append(parts, throughJoinParts(reg, ctx, jc, joinType)...)
			continue
		}

		cube := reg.MustCube(jc.Cube)
		rel, _ := resolver.ResolveRelation(cube.SQL, ctx)

		parts = append(parts, fragment.Lit(" "+joinType+" "), rel.From, fragment.Lit(" ON "), joinOn(jc.Join))
	}

	for _, c := range ctes {
		p := cteForAlias(plan, c.Alias)
		if p == nil {
			continue
		}

		parts = append(parts, fragment.Lit(` LEFT JOIN "`+c.Alias+`" ON `), cteJoinOn(c.Alias, *p))
	}

	if where != nil {
		parts = append(parts, fragment.Lit(" WHERE "), where)
	}

	if len(groupBy) > 0 {
		parts = append(parts, fragment.Lit(" GROUP BY "), commaJoin(groupBy))
	}

	if having != nil {
		parts = append(parts, fragment.Lit(" HAVING "), having)
	}

	if len(orderBy) > 0 {
		parts = append(parts, fragment.Lit(" ORDER BY "), commaJoin(orderBy))
	}

	if limit != nil {
		parts = append(parts, fragment.Lit(" LIMIT "), fragment.Param(*limit))
	}

	if offset != nil {
		parts = append(parts, fragment.Lit(" OFFSET "), fragment.Param(*offset))
	}

	return fragment.Concat(parts...)
}

func commaJoin(parts []*fragment.Fragment) *fragment.Fragment {
	out := make([]*fragment.Fragment, 0, len(parts)*2-1)

	for i, p := range parts {
		if i > 0 {
			out = append(out, fragment.Lit(", "))
		}

		out = append(out, p)
	}

	return fragment.Concat(out...)
}

func joinOn(j model.CubeJoin) *fragment.Fragment {
	var conds []*fragment.Fragment

	for _, col := range j.On {
		cmp := col.Comparator
		if cmp == "" {
			cmp = "="
		}

		conds = append(conds, fragment.Infix(cmp, fragment.Ident(col.SourceColumn), fragment.Ident(col.TargetColumn)))
	}

	return fragment.And(conds...)
}

// throughJoinParts expands a belongsToMany JoinCube that has no measure
// selected (so it bypasses the CTE path) into two sequential JOIN clauses —
// owning cube to junction table, junction table to target cube — per
// spec.md §4.7 step 3. Both hops use joinType, the join's own default
// ("LEFT JOIN" unless overridden).
func throughJoinParts(reg *model.Registry, ctx *model.QueryContext, jc planner.JoinCube, joinType string) []*fragment.Fragment {
	t := jc.Join.Through

	fromPK := planner.PrimaryKeyColumns(reg.MustCube(jc.From))
	targetPK := planner.PrimaryKeyColumns(reg.MustCube(jc.Cube))

	n := len(t.SourceKey)
	if len(fromPK) < n {
		n = len(fromPK)
	}

	var junctionOn []*fragment.Fragment

	for i := 0; i < n; i++ {
		junctionOn = append(junctionOn, fragment.Infix("=", fragment.Ident(fromPK[i]), fragment.Ident(t.Table+"."+t.SourceKey[i])))
	}

	m := len(t.TargetKey)
	if len(targetPK) < m {
		m = len(targetPK)
	}

	var targetOn []*fragment.Fragment

	for i := 0; i < m; i++ {
		targetOn = append(targetOn, fragment.Infix("=", fragment.Ident(t.Table+"."+t.TargetKey[i]), fragment.Ident(targetPK[i])))
	}

	cube := reg.MustCube(jc.Cube)
	rel, _ := resolver.ResolveRelation(cube.SQL, ctx)

	return []*fragment.Fragment{
		fragment.Lit(" " + joinType + " "), fragment.Ident(t.Table), fragment.Lit(" ON "), fragment.And(junctionOn...),
		fragment.Lit(" " + joinType + " "), rel.From, fragment.Lit(" ON "), fragment.And(targetOn...),
	}
}

func cteForAlias(plan *planner.Plan, alias string) *planner.PreAggregationCTE {
	for i := range plan.PreAggregationCTEs {
		if plan.PreAggregationCTEs[i].Alias == alias {
			return &plan.PreAggregationCTEs[i]
		}
	}

	return nil
}

func cteJoinOn(alias string, p planner.PreAggregationCTE) *fragment.Fragment {
	var conds []*fragment.Fragment

	for _, col := range p.JoinKeys {
		qualified := fragment.Concat(fragment.Lit(`"`+alias+`".`), fragment.Ident(p.Cube+"."+col.TargetColumn))
		conds = append(conds, fragment.Infix("=", fragment.Ident(col.SourceColumn), qualified))
	}

	return fragment.And(conds...)
}

func cubesOf(q query.SemanticQuery) []string {
	seen := map[string]bool{}
	var out []string

	add := func(ref string) {
		m, err := model.ParseMember(ref)
		if err != nil {
			return
		}

		if !seen[m.Cube] {
			seen[m.Cube] = true
			out = append(out, m.Cube)
		}
	}

	for _, m := range q.AllMembers() {
		add(m)
	}

	return out
}

func validateQuery(reg *model.Registry, q query.SemanticQuery) error {
	for _, ref := range q.AllMembers() {
		m, err := model.ParseMember(ref)
		if err != nil {
			return err
		}

		cube, ok := reg.Cube(m.Cube)
		if !ok {
			return errs.New("assembler.Compile", m.Cube, m.Field, errs.ErrUnknownMember)
		}

		if _, ok := cube.Dimension(m.Field); ok {
			continue
		}

		if _, ok := cube.Measure(m.Field); ok {
			continue
		}

		return errs.New("assembler.Compile", m.Cube, m.Field, errs.ErrUnknownMember)
	}

	return nil
}

func buildOrderBy(q query.SemanticQuery, selectList []*fragment.Fragment) ([]*fragment.Fragment, error) {
	selected := make(map[string]bool, len(q.Dimensions)+len(q.Measures))
	for _, d := range q.Dimensions {
		selected[d] = true
	}

	for _, m := range q.Measures {
		selected[m] = true
	}

	var out []*fragment.Fragment

	for _, o := range q.Order {
		if !selected[o.Field] {
			isTimeDim := false

			for _, td := range q.TimeDimensions {
				if td.Dimension == o.Field {
					isTimeDim = true
				}
			}

			if !isTimeDim {
				return nil, errs.New("assembler.buildOrderBy", "", o.Field, errs.ErrInvalidOrderField)
			}
		}

		dir := fragment.Lit("ASC")
		if o.Direction == query.Desc {
			dir = fragment.Lit("DESC")
		}

		out = append(out, fragment.Concat(fragment.Lit(`"`+o.Field+`" `), dir))
	}

	explicit := make(map[string]bool, len(q.Order))
	for _, o := range q.Order {
		explicit[o.Field] = true
	}

	var implicitTimeDims []string

	for _, td := range q.TimeDimensions {
		if !explicit[td.Dimension] {
			implicitTimeDims = append(implicitTimeDims, td.Dimension)
		}
	}

	sort.Strings(implicitTimeDims)

	for _, name := range implicitTimeDims {
		out = append(out, fragment.Lit(`"`+name+`" ASC`))
	}

	return out, nil
}

func resolveLimitOffset(limit, offset *int) (*int, *int, error) {
	if limit != nil && *limit < 0 {
		return nil, nil, errs.WrapError("assembler.resolveLimitOffset", errs.ErrInvalidLimit)
	}

	if offset != nil && *offset < 0 {
		return nil, nil, errs.WrapError("assembler.resolveLimitOffset", errs.ErrInvalidOffset)
	}

	if limit == nil && offset != nil {
		d := 50
		limit = &d
	}

	return limit, offset, nil
}

func filtersForCube(reg *model.Registry, fb *builder.FilterBuilder, cache *filtercache.Cache, filters []query.FilterCondition, cubeName string, measureOK bool, now time.Time) ([]*fragment.Fragment, error) {
	var out []*fragment.Fragment

	var walk func(c query.FilterCondition) (*fragment.Fragment, bool, error)

	walk = func(c query.FilterCondition) (*fragment.Fragment, bool, error) {
		if !c.IsLeaf() {
			var children []*fragment.Fragment

			matched := false

			for _, child := range c.And {
				f, ok, err := walk(child)
				if err != nil {
					return nil, false, err
				}

				if ok {
					matched = true
					children = append(children, f)
				}
			}

			for _, child := range c.Or {
				f, ok, err := walk(child)
				if err != nil {
					return nil, false, err
				}

				if ok {
					matched = true
					children = append(children, f)
				}
			}

			if !matched {
				return nil, false, nil
			}

			if len(c.Or) > 0 {
				return fragment.Or(children...), true, nil
			}

			return fragment.And(children...), true, nil
		}

		m, err := model.ParseMember(c.Member)
		if err != nil {
			return nil, false, err
		}

		if m.Cube != cubeName {
			return nil, false, nil
		}

		_, dim, err := reg.ResolveDimension(c.Member)
		if err != nil {
			// A measure predicate is not a WHERE predicate; havingFor
			// builds it into HAVING.
			if _, _, mErr := reg.ResolveMeasure(c.Member); mErr == nil || measureOK {
				return nil, false, nil
			}

			return nil, false, err
		}

		expr, err := resolver.ResolveDimension(dim, model.NewQueryContext(nil, nil))
		if err != nil {
			return nil, false, err
		}

		key := filtercache.Key(filtercache.Condition{
			Member: c.Member, Operator: string(c.Operator), Values: c.Values,
			DateRange: [2]string{c.DateRange.Start, c.DateRange.End},
		})

		f, err := cache.GetOrBuild(key, func() (*fragment.Fragment, error) {
			return fb.Build(c, expr, dim.Type == model.DimensionTime)
		})
		if err != nil {
			return nil, false, err
		}

		return f, true, nil
	}

	for _, c := range filters {
		f, ok, err := walk(c)
		if err != nil {
			return nil, err
		}

		if ok {
			out = append(out, f)
		}
	}

	return out, nil
}

func timeFiltersForCube(fb *builder.FilterBuilder, tds []query.TimeDimension, reg *model.Registry, cubeName string) []*fragment.Fragment {
	var out []*fragment.Fragment

	for _, td := range tds {
		if td.DateRange.IsZero() {
			continue
		}

		m, err := model.ParseMember(td.Dimension)
		if err != nil || m.Cube != cubeName {
			continue
		}

		_, dim, err := reg.ResolveDimension(td.Dimension)
		if err != nil {
			continue
		}

		expr, err := resolver.ResolveDimension(dim, model.NewQueryContext(nil, nil))
		if err != nil {
			continue
		}

		f, err := fb.DateTime.BuildDateRangeCondition(expr, td.DateRange.Relative, td.DateRange.Start, td.DateRange.End, fb.Now)
		if err == nil && f != nil {
			out = append(out, f)
		}
	}

	return out
}

func buildPropagatingFilter(reg *model.Registry, ctx *model.QueryContext, fb *builder.FilterBuilder, cache *filtercache.Cache, filters []query.FilterCondition, otherCube, targetCube string, now time.Time) (*fragment.Fragment, error) {
	join, ok := reg.MustCube(otherCube).JoinTo(targetCube)
	if !ok {
		return nil, nil
	}

	otherFilters, err := filtersForCube(reg, fb, cache, filters, otherCube, false, now)
	if err != nil {
		return nil, err
	}

	other := reg.MustCube(otherCube)

	otherRel, err := resolver.ResolveRelation(other.SQL, ctx)
	if err != nil {
		return nil, err
	}

	otherWhere := fragment.And(append([]*fragment.Fragment{otherRel.Where}, otherFilters...)...)

	targetFKExprs := make([]*fragment.Fragment, 0, len(join.On))
	otherPKExprs := make([]*fragment.Fragment, 0, len(join.On))

	for _, col := range join.On {
		targetFKExprs = append(targetFKExprs, fragment.Ident(col.TargetColumn))
		otherPKExprs = append(otherPKExprs, fragment.Ident(col.SourceColumn))
	}

	key := "propagate:" + otherCube + "->" + targetCube

	return cte.PropagatingFilter(targetFKExprs, otherPKExprs, otherRel, otherWhere, cache, key)
}

func havingFor(reg *model.Registry, fb *builder.FilterBuilder, mb *builder.MeasureBuilder, filters []query.FilterCondition, ctx *model.QueryContext, now time.Time) (*fragment.Fragment, error) {
	var parts []*fragment.Fragment

	var walk func(c query.FilterCondition) error

	walk = func(c query.FilterCondition) error {
		if !c.IsLeaf() {
			for _, child := range c.And {
				if err := walk(child); err != nil {
					return err
				}
			}

			for _, child := range c.Or {
				if err := walk(child); err != nil {
					return err
				}
			}

			return nil
		}

		m, err := model.ParseMember(c.Member)
		if err != nil {
			return err
		}

		cube, ok := reg.Cube(m.Cube)
		if !ok {
			return nil
		}

		if _, ok := cube.Measure(m.Field); !ok {
			return nil // not a measure predicate; belongs in WHERE, handled elsewhere
		}

		expr, err := mb.BuildAggregate(c.Member, ctx)
		if err != nil {
			return err
		}

		f, err := fb.Build(c, expr, false)
		if err != nil {
			return err
		}

		parts = append(parts, f)

		return nil
	}

	for _, c := range filters {
		if err := walk(c); err != nil {
			return nil, err
		}
	}

	return fragment.And(parts...), nil
}
