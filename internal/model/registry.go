package model

import (
	"fmt"

	"github.com/accented-ai/semq/internal/errs"
)

// Registry is the process-wide, read-only collection of cubes a compiler
// instance is built against (spec.md §3 "Lifecycles": constructed once at
// startup, never mutated after).
type Registry struct {
	cubes map[string]*Cube
	order []string // registry (insertion) order, used for deterministic tie-breaking (spec.md §4.7)
}

// NewRegistry builds a Registry from an ordered list of cubes. Order is
// preserved for the "registry order" tie-break spec.md §9's open question
// resolves primary-cube ambiguity with.
func NewRegistry(cubes ...*Cube) (*Registry, error) {
	r := &Registry{cubes: make(map[string]*Cube, len(cubes))}

	for _, c := range cubes {
		if _, exists := r.cubes[c.Name]; exists {
			return nil, errs.WrapError("NewRegistry", fmt.Errorf("duplicate cube name %q", c.Name))
		}

		r.cubes[c.Name] = c
		r.order = append(r.order, c.Name)
	}

	return r, nil
}

// Cube looks up a cube by name.
func (r *Registry) Cube(name string) (*Cube, bool) {
	c, ok := r.cubes[name]
	return c, ok
}

// MustCube panics if name is not registered; reserved for call sites that
// have already validated the name (e.g. after ResolveDimension or
// ResolveMeasure succeeded).
func (r *Registry) MustCube(name string) *Cube {
	c, ok := r.cubes[name]
	if !ok {
		panic(fmt.Sprintf("model: cube %q not in registry", name))
	}

	return c
}

// Order returns cube names in registry (construction) order.
func (r *Registry) Order() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// Member is a parsed "Cube.field" reference (spec.md §3 invariant 1).
type Member struct {
	Cube  string
	Field string
}

func (m Member) String() string { return m.Cube + "." + m.Field }

// ParseMember splits "Cube.field" into its parts, rejecting anything that
// isn't exactly one dot.
func ParseMember(ref string) (Member, error) {
	dot := -1

	for i, r := range ref {
		if r == '.' {
			if dot != -1 {
				return Member{}, errs.WrapError("ParseMember", fmt.Errorf("%w: %q has more than one dot", errs.ErrUnknownMember, ref))
			}

			dot = i
		}
	}

	if dot <= 0 || dot == len(ref)-1 {
		return Member{}, errs.WrapError("ParseMember", fmt.Errorf("%w: %q is not Cube.field", errs.ErrUnknownMember, ref))
	}

	return Member{Cube: ref[:dot], Field: ref[dot+1:]}, nil
}

// ResolveDimension validates a "Cube.field" reference against the registry
// and returns the owning cube and dimension.
func (r *Registry) ResolveDimension(ref string) (*Cube, Dimension, error) {
	m, err := ParseMember(ref)
	if err != nil {
		return nil, Dimension{}, err
	}

	cube, ok := r.Cube(m.Cube)
	if !ok {
		return nil, Dimension{}, errs.New("ResolveDimension", m.Cube, m.Field, errs.ErrUnknownMember)
	}

	dim, ok := cube.Dimension(m.Field)
	if !ok {
		return nil, Dimension{}, errs.New("ResolveDimension", m.Cube, m.Field, errs.ErrUnknownMember)
	}

	return cube, dim, nil
}

// ResolveMeasure validates a "Cube.field" reference against the registry
// and returns the owning cube and measure.
func (r *Registry) ResolveMeasure(ref string) (*Cube, Measure, error) {
	m, err := ParseMember(ref)
	if err != nil {
		return nil, Measure{}, err
	}

	cube, ok := r.Cube(m.Cube)
	if !ok {
		return nil, Measure{}, errs.New("ResolveMeasure", m.Cube, m.Field, errs.ErrUnknownMember)
	}

	meas, ok := cube.Measure(m.Field)
	if !ok {
		return nil, Measure{}, errs.New("ResolveMeasure", m.Cube, m.Field, errs.ErrUnknownMember)
	}

	return cube, meas, nil
}
