// Package calcmeasure implements the Calculated Measure Resolver (spec.md
// §4.6, C6): builds a dependency graph over the calculated measures a
// query transitively needs and topologically sorts them so each can be
// substituted (via internal/template) only after its dependencies are
// already built.
package calcmeasure

import (
	"fmt"

	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/graph"
	"github.com/accented-ai/semq/internal/model"
	"github.com/accented-ai/semq/internal/template"
)

// Plan is the resolved build order for a set of requested calculated
// measures, expressed as fully qualified "Cube.field" names.
type Plan struct {
	Order []string // topologically sorted, dependencies first
}

// Resolve computes the transitive closure of calculated-measure
// dependencies reachable from requested (each a "Cube.field" reference
// already known to name a Calculated measure), and returns them in
// dependency order. reachable reports whether sourceCube can reach
// targetCube via the join graph — cross-cube calculated-measure
// dependencies are only permitted when both cubes are mutually joinable
// (spec.md §4.6 "detects cross-cube dependency closures").
func Resolve(reg *model.Registry, requested []string, reachable func(fromCube, toCube string) bool) (Plan, error) {
	g := graph.NewDependencyGraph[string]()

	var walk func(member string) error
	visited := make(map[string]bool)

	walk = func(member string) error {
		if visited[member] {
			return nil
		}

		visited[member] = true

		m, err := model.ParseMember(member)
		if err != nil {
			return err
		}

		cube, ok := reg.Cube(m.Cube)
		if !ok {
			return errs.New("calcmeasure.Resolve", m.Cube, m.Field, errs.ErrUnknownMember)
		}

		meas, ok := cube.Measure(m.Field)
		if !ok {
			return errs.New("calcmeasure.Resolve", m.Cube, m.Field, errs.ErrUnknownMember)
		}

		if !model.IsCalculatedMeasure(meas) {
			return nil // a non-calculated dependency needs no graph node
		}

		g.AddNode(member)

		_, deps, err := template.Tokenize(meas.CalculatedSQL)
		if err != nil {
			return errs.New("calcmeasure.Resolve", m.Cube, m.Field, err)
		}

		for _, dep := range deps {
			depMember := qualify(dep.Raw, m.Cube)

			depParsed, err := model.ParseMember(depMember)
			if err != nil {
				return err
			}

			if depParsed.Cube != m.Cube && !reachable(m.Cube, depParsed.Cube) {
				return errs.New("calcmeasure.Resolve", m.Cube, m.Field,
					fmt.Errorf("%w: calculated measure depends on unreachable cube %q", errs.ErrUnreachableCube, depParsed.Cube))
			}

			if err := walk(depMember); err != nil {
				return err
			}

			depCube, ok := reg.Cube(depParsed.Cube)
			if !ok {
				return errs.New("calcmeasure.Resolve", depParsed.Cube, depParsed.Field, errs.ErrUnknownMember)
			}

			if depMeas, ok := depCube.Measure(depParsed.Field); ok && model.IsCalculatedMeasure(depMeas) {
				g.AddNode(depMember)

				if err := g.AddDependency(member, depMember); err != nil {
					return errs.WrapError("calcmeasure.Resolve", err)
				}
			}
		}

		return nil
	}

	for _, r := range requested {
		if err := walk(r); err != nil {
			return Plan{}, err
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		var cycleErr *graph.CycleError[string]
		if asCycleError(err, &cycleErr) {
			return Plan{}, errs.WrapError("calcmeasure.Resolve", fmt.Errorf("%w: %v", errs.ErrCalculatedMeasureCycle, cycleErr.Remaining))
		}

		return Plan{}, errs.WrapError("calcmeasure.Resolve", err)
	}

	return Plan{Order: order}, nil
}

func asCycleError(err error, target **graph.CycleError[string]) bool {
	ce, ok := err.(*graph.CycleError[string])
	if !ok {
		return false
	}

	*target = ce

	return true
}

// qualify turns a bare field token into "Cube.field" using defaultCube
// when the token has no dot, matching spec.md §3's "{member} / {Cube.member}"
// dual syntax.
func qualify(token, defaultCube string) string {
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			return token
		}
	}

	return defaultCube + "." + token
}
