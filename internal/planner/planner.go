// Package planner implements the Query Planner (spec.md §4.7, C7): from a
// SemanticQuery and a cube registry, selects the primary cube, computes
// join order via BFS over the join graph, expands belongsToMany joins
// through their junction tables, and decides which joined cubes require a
// pre-aggregation CTE to avoid hasMany/belongsToMany row fan-out.
package planner

import (
	"sort"

	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/graph"
	"github.com/accented-ai/semq/internal/model"
)

// JoinCube is one non-primary cube the plan joins in, in application
// order.
type JoinCube struct {
	Cube string
	Join model.CubeJoin // the join declared by the cube preceding it on the BFS path
	From string         // the cube that declares Join
}

// PreAggregationCTE is a cube reached only via hasMany/belongsToMany that
// contributes a selected measure, and therefore must be pre-aggregated in
// its own CTE before joining (spec.md §3 invariant 3) to avoid duplicating
// rows from the "one" side of the relationship.
type PreAggregationCTE struct {
	Alias    string
	Cube     string
	Measures []string
	// JoinKeys pairs the owning cube's column (SourceColumn) with the
	// column this CTE exposes under that name (TargetColumn, aliased
	// "Cube.col" in its SELECT list). For a belongsToMany hop, TargetColumn
	// names a Junction column rather than a dimension of Cube — see Junction.
	JoinKeys []model.JoinColumn
	// Junction is non-nil when this CTE reaches its cube via a belongsToMany
	// join: the junction table is joined into the CTE's own FROM and its
	// SecuritySQL contributes to the CTE's WHERE (spec.md §4.7 step 3).
	Junction *Junction
	// PropagatingFrom lists cubes whose filters must be pushed into this
	// CTE's WHERE as an IN/EXISTS subquery (spec.md §3 invariant 4).
	PropagatingFrom []string
}

// Junction carries a belongsToMany join's junction-table description,
// translated from model.ManyToMany into the column pairs internal/cte needs
// to join the junction table into a pre-aggregation CTE's FROM.
type Junction struct {
	Table string
	// TargetKeys are junction columns equal to the target cube's primary
	// key, paired positionally with TargetPK.
	TargetKeys []string
	TargetPK   []string
	// JoinType is the SQL join keyword used to attach the junction table,
	// defaulting like any belongsToMany hop to LEFT JOIN unless overridden
	// (spec.md §4.7 step 3).
	JoinType    string
	SecuritySQL model.RelationResolver
}

// PrimaryKeyColumns returns cube's primary-key dimension names in
// deterministic (alphabetical) order, used to zip against a belongsToMany
// join's Through.SourceKey/TargetKey column lists, which carry no dimension
// names of their own to pair against.
func PrimaryKeyColumns(cube *model.Cube) []string {
	var names []string

	for name, d := range cube.Dimensions {
		if d.PrimaryKey {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}

// expandThrough turns a belongsToMany join's junction-table description into
// the composite JoinKeys a pre-aggregation CTE exposes to the outer query
// (paired with the owning cube's primary key) plus the Junction descriptor
// internal/cte needs to join the junction table into its own FROM (spec.md
// §4.7 step 3).
func expandThrough(reg *model.Registry, join model.CubeJoin, from, to string) ([]model.JoinColumn, *Junction) {
	t := join.Through

	fromPK := PrimaryKeyColumns(reg.MustCube(from))
	targetPK := PrimaryKeyColumns(reg.MustCube(to))

	n := len(t.SourceKey)
	if len(fromPK) < n {
		n = len(fromPK)
	}

	joinKeys := make([]model.JoinColumn, 0, n)
	for i := 0; i < n; i++ {
		joinKeys = append(joinKeys, model.JoinColumn{SourceColumn: fromPK[i], TargetColumn: t.SourceKey[i]})
	}

	joinType := string(join.DefaultJoinType())

	return joinKeys, &Junction{
		Table:       t.Table,
		TargetKeys:  t.TargetKey,
		TargetPK:    targetPK,
		JoinType:    joinType,
		SecuritySQL: t.SecuritySQL,
	}
}

// Plan is the compiler-internal QueryPlan (spec.md §3).
type Plan struct {
	PrimaryCube        string
	JoinCubes          []JoinCube
	PreAggregationCTEs []PreAggregationCTE
}

// SelectPrimaryCube returns the referenced cube that comes first in
// registry order (see DESIGN.md). The order in which the query requested
// its members is not consulted: a query whose first dimension belongs to
// a later-registered cube still gets the earlier-registered cube.
func SelectPrimaryCube(reg *model.Registry, referencedCubes []string) (string, error) {
	if len(referencedCubes) == 0 {
		return "", errs.WrapError("planner.SelectPrimaryCube", errs.ErrUnknownMember)
	}

	referenced := make(map[string]bool, len(referencedCubes))
	for _, c := range referencedCubes {
		referenced[c] = true
	}

	for _, name := range reg.Order() {
		if referenced[name] {
			return name, nil
		}
	}

	return "", errs.WrapError("planner.SelectPrimaryCube", errs.ErrUnreachableCube)
}

// buildJoinGraph constructs the directed adjacency graph of declared cube
// joins, used by BFS to find the shortest path from the primary cube to
// every other referenced cube (spec.md §4.7).
func buildJoinGraph(reg *model.Registry) *graph.AdjacencyGraph[string] {
	g := graph.NewAdjacencyGraph[string]()

	for _, name := range reg.Order() {
		cube := reg.MustCube(name)
		for _, j := range cube.Joins {
			g.AddEdge(name, j.TargetCube)
			g.AddEdge(j.TargetCube, name) // joins are traversable from either side
		}
	}

	return g
}

// Reachable reports whether target is reachable from source via any chain
// of declared joins — used by internal/calcmeasure to gate cross-cube
// calculated-measure dependencies (spec.md §4.6).
func Reachable(reg *model.Registry, source, target string) bool {
	g := buildJoinGraph(reg)
	_, ok := g.BFSPath(source, target)

	return ok
}

// Plan computes the join order and pre-aggregation CTE decisions for a
// query referencing referencedCubes with requestedMeasuresByCube naming,
// per cube, the measures requested from it.
func Plan(reg *model.Registry, referencedCubes []string, requestedMeasuresByCube map[string][]string) (*Plan, error) {
	primary, err := SelectPrimaryCube(reg, referencedCubes)
	if err != nil {
		return nil, err
	}

	g := buildJoinGraph(reg)

	others := make([]string, 0, len(referencedCubes))

	for _, c := range referencedCubes {
		if c != primary {
			others = append(others, c)
		}
	}

	sort.Strings(others)

	plan := &Plan{PrimaryCube: primary}
	visited := map[string]bool{primary: true}

	for _, target := range others {
		if visited[target] {
			continue
		}

		path, ok := g.BFSPath(primary, target)
		if !ok {
			return nil, errs.New("planner.Plan", target, "", errs.ErrUnreachableCube)
		}

		for i := 1; i < len(path); i++ {
			from, to := path[i-1], path[i]
			if visited[to] {
				continue
			}

			visited[to] = true

			join, ok := reg.MustCube(from).JoinTo(to)
			if !ok {
				// joins are undirected for BFS purposes; the declaration
				// may live on the target cube instead.
				join, ok = reg.MustCube(to).JoinTo(from)
				if !ok {
					return nil, errs.New("planner.Plan", from, to, errs.ErrUnreachableCube)
				}
			}

			jc := JoinCube{Cube: to, Join: join, From: from}

			if requiresPreAggregation(join) && len(requestedMeasuresByCube[to]) > 0 {
				cteEntry := PreAggregationCTE{
					Alias:    "cte_" + to,
					Cube:     to,
					Measures: requestedMeasuresByCube[to],
				}

				if join.Through != nil {
					cteEntry.JoinKeys, cteEntry.Junction = expandThrough(reg, join, from, to)
				} else {
					cteEntry.JoinKeys = join.On
				}

				plan.PreAggregationCTEs = append(plan.PreAggregationCTEs, cteEntry)
			} else {
				plan.JoinCubes = append(plan.JoinCubes, jc)
			}
		}
	}

	attachPropagatingFilters(plan, reg)

	return plan, nil
}

// requiresPreAggregation reports whether reaching a cube via this join
// risks row fan-out (spec.md §3 invariant 3: hasMany or belongsToMany).
func requiresPreAggregation(j model.CubeJoin) bool {
	return j.Relationship == model.HasMany || j.Relationship == model.BelongsToMany
}

// attachPropagatingFilters records, for each pre-aggregation CTE over
// cube B, which other selected cubes A have a hasMany path into B — those
// cubes' filters must propagate into B's CTE as an IN/EXISTS subquery
// (spec.md §3 invariant 4). The actual subquery fragment is built later by
// internal/cte, which has access to the resolved filter fragments and
// internal/filtercache; this pass only records which cubes qualify.
func attachPropagatingFilters(plan *Plan, reg *model.Registry) {
	for i := range plan.PreAggregationCTEs {
		cte := &plan.PreAggregationCTEs[i]

		for _, jc := range plan.JoinCubes {
			if jc.Cube == cte.Cube {
				continue
			}

			if join, ok := reg.MustCube(jc.Cube).JoinTo(cte.Cube); ok && requiresPreAggregation(join) {
				cte.PropagatingFrom = append(cte.PropagatingFrom, jc.Cube)
			}
		}

		if plan.PrimaryCube != cte.Cube {
			if join, ok := reg.MustCube(plan.PrimaryCube).JoinTo(cte.Cube); ok && requiresPreAggregation(join) {
				cte.PropagatingFrom = append(cte.PropagatingFrom, plan.PrimaryCube)
			}
		}
	}
}
