// Package cte implements the CTE Builder (spec.md §4.8, C8): emits one
// pre-aggregation CTE per planner.PreAggregationCTE — its SELECT (join
// keys + grouped dimensions + aggregated measures), WHERE (security +
// filters + propagating-filter subqueries), GROUP BY, and the join
// ON-clause the outer query uses to attach it.
package cte

import (
	"github.com/accented-ai/semq/internal/builder"
	"github.com/accented-ai/semq/internal/filtercache"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/planner"
	"github.com/accented-ai/semq/internal/resolver"
)

// Built is one fully-built pre-aggregation CTE.
type Built struct {
	Alias   string
	Select  []*fragment.Fragment // each already aliased via fragment.As
	From    *fragment.Fragment
	Where   *fragment.Fragment
	GroupBy []*fragment.Fragment
}

// JoinKeyExpr resolves one join key column against cube ctx, returning the
// cube's dimension of that name if it has one and a bare identifier
// otherwise; used for the CTE's SELECT/GROUP BY and for a junction join's
// ON-clause.
func JoinKeyExpr(cube *model.Cube, col string, ctx *model.QueryContext) (*fragment.Fragment, error) {
	dim, ok := cube.Dimension(col)
	if ok {
		return resolver.ResolveDimension(dim, ctx)
	}

	return fragment.Ident(col), nil
}

// Build assembles one PreAggregationCTE into a Built value.
//
// mb resolves each requested measure to its aggregate fragment, with
// reachable deciding which cubes a calculated measure may draw on;
// cteFilters are the CTE cube's own filter predicates and propagating the
// propagating-filter subqueries pushed in from other selected cubes
// (spec.md §3 invariant 4), both ANDed into the WHERE; reg looks up
// cube/relation definitions.
func Build(
	p planner.PreAggregationCTE,
	reg *model.Registry,
	ctx *model.QueryContext,
	mb *builder.MeasureBuilder,
	reachable func(fromCube, toCube string) bool,
	cteFilters []*fragment.Fragment,
	propagating []*fragment.Fragment,
) (Built, error) {
	cube, ok := reg.Cube(p.Cube)
	if !ok {
		return Built{}, nil
	}

	rel, err := resolver.ResolveRelation(cube.SQL, ctx)
	if err != nil {
		return Built{}, err
	}

	from := rel.From

	var selectList, groupBy []*fragment.Fragment
	var junctionWhere *fragment.Fragment

	if p.Junction != nil {
		from, junctionWhere, err = joinJunction(cube, p.Junction, from, ctx)
		if err != nil {
			return Built{}, err
		}

		for _, jk := range p.JoinKeys {
			// TargetColumn names a column on the Junction table, not a
			// dimension of cube — see planner.PreAggregationCTE.JoinKeys.
			expr := fragment.Ident(p.Junction.Table + "." + jk.TargetColumn)
			selectList = append(selectList, fragment.As(expr, p.Cube+"."+jk.TargetColumn))
			groupBy = append(groupBy, expr)
		}
	} else {
		for _, jk := range p.JoinKeys {
			expr, err := JoinKeyExpr(cube, jk.TargetColumn, ctx)
			if err != nil {
				return Built{}, err
			}

			selectList = append(selectList, fragment.As(expr, p.Cube+"."+jk.TargetColumn))
			groupBy = append(groupBy, expr)
		}
	}

	resolved, err := mb.ResolveMeasures(p.Measures, reachable)
	if err != nil {
		return Built{}, err
	}

	for _, ref := range p.Measures {
		rm, ok := resolved[ref]
		if !ok {
			continue
		}

		f, err := rm.Build(ctx)
		if err != nil {
			return Built{}, err
		}

		selectList = append(selectList, fragment.As(f, ref))
	}

	where := fragment.And(append(append([]*fragment.Fragment{rel.Where, junctionWhere}, cteFilters...), propagating...)...)

	return Built{
		Alias:   p.Alias,
		Select:  selectList,
		From:    from,
		Where:   where,
		GroupBy: groupBy,
	}, nil
}

// joinJunction attaches a belongsToMany join's junction table to from, the
// cube's own base relation, returning the combined FROM fragment plus the
// junction's row-level-security predicate, if any (spec.md §4.7 step 3).
func joinJunction(cube *model.Cube, j *planner.Junction, from *fragment.Fragment, ctx *model.QueryContext) (*fragment.Fragment, *fragment.Fragment, error) {
	var onConds []*fragment.Fragment

	for i, targetKeyCol := range j.TargetKeys {
		if i >= len(j.TargetPK) {
			break
		}

		targetCol, err := JoinKeyExpr(cube, j.TargetPK[i], ctx)
		if err != nil {
			return nil, nil, err
		}

		onConds = append(onConds, fragment.Equal(fragment.Ident(j.Table+"."+targetKeyCol), targetCol))
	}

	joined := fragment.Concat(from, fragment.Lit(" "+j.JoinType+" "), fragment.Ident(j.Table), fragment.Lit(" ON "), fragment.And(onConds...))

	var junctionWhere *fragment.Fragment

	if j.SecuritySQL != nil {
		secRel, err := resolver.ResolveRelation(j.SecuritySQL, ctx)
		if err != nil {
			return nil, nil, err
		}

		junctionWhere = secRel.Where
	}

	return joined, junctionWhere, nil
}

// PropagatingFilter builds the IN (single key) or EXISTS (composite key)
// subquery that pushes a related cube's own filters into this CTE, per
// spec.md §3 invariant 4. otherRel is the related cube's base relation;
// otherWhere is its combined WHERE (security + filters); cache
// deduplicates the pushed predicate's bound parameters against any
// identical predicate also applied in the outer query.
func PropagatingFilter(
	targetFKExprs []*fragment.Fragment,
	otherPKExprs []*fragment.Fragment,
	otherRel model.Relation,
	otherWhere *fragment.Fragment,
	cache *filtercache.Cache,
	cacheKey string,
) (*fragment.Fragment, error) {
	build := func() (*fragment.Fragment, error) {
		inner := fragment.And(otherWhere)

		if len(targetFKExprs) == 1 {
			sub := subquerySelect(otherPKExprs[0], otherRel.From, inner)
			return fragment.Infix("IN", targetFKExprs[0], sub), nil
		}

		eqs := make([]*fragment.Fragment, 0, len(targetFKExprs))

		for i := range targetFKExprs {
			eqs = append(eqs, fragment.Equal(targetFKExprs[i], otherPKExprs[i]))
		}

		cond := fragment.And(append(eqs, inner)...)
		sub := subquerySelect(fragment.Lit("1"), otherRel.From, cond)

		return fragment.Concat(fragment.Lit("EXISTS "), sub), nil
	}

	if cache == nil {
		return build()
	}

	return cache.GetOrBuild(cacheKey, build)
}

// subquerySelect renders "(SELECT col FROM from WHERE cond)" as a single
// Raw-free fragment tree: Prefix("", ...) gives the parens, Concat
// stitches the literal SELECT/FROM/WHERE keywords to the fragments
// between them without inserting spurious separators.
func subquerySelect(col, from, cond *fragment.Fragment) *fragment.Fragment {
	parts := []*fragment.Fragment{fragment.Lit("SELECT "), col, fragment.Lit(" FROM "), from}

	if cond != nil {
		parts = append(parts, fragment.Lit(" WHERE "), cond)
	}

	return fragment.Prefix("", fragment.Concat(parts...))
}
