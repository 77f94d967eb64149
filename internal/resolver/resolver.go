// Package resolver implements the Expression Resolver (spec.md §4.2): a
// pure function turning a cube's column/fragment/closure expression into
// an isolated fragment.Fragment. "Isolated" here means structural
// immutability — fragment.Fragment values never expose mutators, so a
// Resolve call can never hand back something a second, concurrent
// Resolve call (over the same model.ExpressionResolver, a different
// QueryContext) could corrupt.
package resolver

import (
	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
)

// Resolve invokes expr.Resolve(ctx) and returns the resulting fragment.
// Because model.ExpressionResolver implementations (model.Column,
// model.ExpressionFunc) never retain a reference to what they return
// beyond constructing it fresh each call, two Resolve calls against the
// same ExpressionResolver and different contexts never share a mutable
// fragment node — each call's tree is independently built.
func Resolve(expr model.ExpressionResolver, ctx *model.QueryContext) (*fragment.Fragment, error) {
	if expr == nil {
		return nil, errs.WrapError("resolver.Resolve", errs.ErrUnresolvedMember)
	}

	f, err := expr.Resolve(ctx)
	if err != nil {
		return nil, errs.WrapError("resolver.Resolve", err)
	}

	return f, nil
}

// ResolveRelation invokes a cube's sql(ctx) resolver. Per spec.md §3, this
// must be invoked fresh for every compilation with the caller's security
// context — the result is never cached across QueryContexts, and this
// function performs no caching of its own.
func ResolveRelation(r model.RelationResolver, ctx *model.QueryContext) (model.Relation, error) {
	if r == nil {
		return model.Relation{}, errs.WrapError("resolver.ResolveRelation", errs.ErrUnresolvedMember)
	}

	rel, err := r.Resolve(ctx)
	if err != nil {
		return model.Relation{}, errs.WrapError("resolver.ResolveRelation", err)
	}

	return rel, nil
}

// ResolveDimension resolves a dimension's SQL expression within ctx.
func ResolveDimension(d model.Dimension, ctx *model.QueryContext) (*fragment.Fragment, error) {
	return Resolve(d.SQL, ctx)
}
