package builder

import (
	"strings"
	"time"

	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/query"
)

// FilterBuilder dispatches FilterCondition leaves to dialect-aware
// predicates (spec.md §4.4 FilterBuilder).
type FilterBuilder struct {
	Adapter  dialect.Adapter
	DateTime *DateTimeBuilder
	Now      time.Time
}

// NewFilterBuilder binds a FilterBuilder to adapter, reusing it for date
// normalization via an internal DateTimeBuilder.
func NewFilterBuilder(adapter dialect.Adapter, now time.Time) *FilterBuilder {
	return &FilterBuilder{Adapter: adapter, DateTime: NewDateTimeBuilder(adapter), Now: now}
}

// sanitizeValues drops nil, "", and any value containing a NUL byte —
// spec.md §4.4's injection-payload defense.
func sanitizeValues(values []any) []any {
	out := make([]any, 0, len(values))

	for _, v := range values {
		if v == nil {
			continue
		}

		if s, ok := v.(string); ok {
			if s == "" || strings.ContainsRune(s, 0) {
				continue
			}
		}

		out = append(out, v)
	}

	return out
}

// Build dispatches one leaf FilterCondition against expr (the already
// resolved column/expression fragment for c.Member). isTime reports
// whether c.Member is a time-typed dimension; whether the dialect allows
// array operators (Postgres only per spec.md §4.4) is read from the
// adapter's Kind.
func (b *FilterBuilder) Build(c query.FilterCondition, expr *fragment.Fragment, isTime bool) (*fragment.Fragment, error) {
	if !c.DateRange.IsZero() && (c.Operator != query.OpInDateRange || !isTime) {
		return nil, errs.New("FilterBuilder.Build", "", c.Member, errs.ErrInvalidDateRange)
	}

	values := sanitizeValues(c.Values)

	if isTime {
		for i, v := range values {
			norm, err := b.DateTime.NormalizeDate(v)
			if err != nil {
				return nil, errs.WrapError("FilterBuilder.Build", err)
			}

			values[i] = norm
		}
	}

	switch c.Operator {
	case query.OpEquals:
		if len(values) == 0 {
			return b.Adapter.BooleanLiteral(false), nil
		}

		return fragment.Equal(expr, fragment.Param(values[0])), nil

	case query.OpNotEquals:
		if len(values) == 0 {
			return b.Adapter.BooleanLiteral(true), nil
		}

		return fragment.Infix("<>", expr, fragment.Param(values[0])), nil

	case query.OpContains:
		return b.stringOp(expr, dialect.Contains, values)
	case query.OpNotContains:
		return b.stringOp(expr, dialect.NotContains, values)
	case query.OpStartsWith:
		return b.stringOp(expr, dialect.StartsWith, values)
	case query.OpEndsWith:
		return b.stringOp(expr, dialect.EndsWith, values)
	case query.OpLike:
		return b.stringOp(expr, dialect.Like, values)
	case query.OpNotLike:
		return b.stringOp(expr, dialect.NotLike, values)
	case query.OpILike:
		return b.stringOp(expr, dialect.ILike, values)
	case query.OpRegex:
		return b.stringOp(expr, dialect.Regex, values)
	case query.OpNotRegex:
		return b.stringOp(expr, dialect.NotRegex, values)

	case query.OpGt:
		return cmp(expr, ">", values)
	case query.OpGte:
		return cmp(expr, ">=", values)
	case query.OpLt:
		return cmp(expr, "<", values)
	case query.OpLte:
		return cmp(expr, "<=", values)

	case query.OpSet:
		return fragment.Infix("IS NOT", expr, fragment.Lit("NULL")), nil
	case query.OpNotSet:
		return fragment.Infix("IS", expr, fragment.Lit("NULL")), nil

	case query.OpIsEmpty:
		return fragment.Or(
			fragment.Infix("IS", expr, fragment.Lit("NULL")),
			fragment.Equal(expr, fragment.Param("")),
		), nil
	case query.OpIsNotEmpty:
		return fragment.And(
			fragment.Infix("IS NOT", expr, fragment.Lit("NULL")),
			fragment.Infix("<>", expr, fragment.Param("")),
		), nil

	case query.OpInDateRange:
		return b.DateTime.BuildDateRangeCondition(expr, c.DateRange.Relative, c.DateRange.Start, c.DateRange.End, b.Now)
	case query.OpBeforeDate:
		if len(values) == 0 {
			return nil, errs.New("FilterBuilder.Build", "", c.Member, errs.ErrInvalidDateRange)
		}

		return fragment.Infix("<", expr, fragment.Param(values[0])), nil
	case query.OpAfterDate:
		if len(values) == 0 {
			return nil, errs.New("FilterBuilder.Build", "", c.Member, errs.ErrInvalidDateRange)
		}

		return fragment.Infix(">", expr, fragment.Param(values[0])), nil

	case query.OpBetween:
		if len(values) < 2 {
			return nil, errs.New("FilterBuilder.Build", "", c.Member, errs.ErrInvalidDateRange)
		}

		return Between(expr, fragment.Param(values[0]), fragment.Param(values[1])), nil
	case query.OpNotBetween:
		if len(values) < 2 {
			return nil, errs.New("FilterBuilder.Build", "", c.Member, errs.ErrInvalidDateRange)
		}

		return fragment.Or(
			fragment.Infix("<", expr, fragment.Param(values[0])),
			fragment.Infix(">", expr, fragment.Param(values[1])),
		), nil

	case query.OpIn:
		return inList(expr, values, false), nil
	case query.OpNotIn:
		return inList(expr, values, true), nil

	case query.OpArrayContains, query.OpArrayContained, query.OpArrayOverlaps:
		if b.Adapter.Kind().String() != "postgres" {
			return nil, nil // spec.md §4.4: array operators are Postgres-only, silent no-op elsewhere
		}

		return b.arrayOp(c.Operator, expr, values), nil

	default:
		return nil, errs.New("FilterBuilder.Build", "", c.Member, errs.ErrUnresolvedMember)
	}
}

func cmp(expr *fragment.Fragment, op string, values []any) (*fragment.Fragment, error) {
	if len(values) == 0 {
		return nil, errs.WrapError("FilterBuilder.cmp", errs.ErrInvalidDateRange)
	}

	return fragment.Infix(op, expr, fragment.Param(values[0])), nil
}

// inList builds "expr IN (v1, v2, ...)" (or NOT IN). The value list reuses
// fragment.Prefix with an empty function name to get a bare paren-wrapped,
// comma-joined group, then Infix splices "IN"/"NOT IN" between expr and
// that group.
func inList(expr *fragment.Fragment, values []any, negate bool) *fragment.Fragment {
	if len(values) == 0 {
		return fragment.Lit("FALSE")
	}

	params := make([]*fragment.Fragment, len(values))
	for i, v := range values {
		params[i] = fragment.Param(v)
	}

	group := fragment.Prefix("", params...)

	op := "IN"
	if negate {
		op = "NOT IN"
	}

	return fragment.Infix(op, expr, group)
}

func (b *FilterBuilder) stringOp(expr *fragment.Fragment, op dialect.StringOp, values []any) (*fragment.Fragment, error) {
	if len(values) == 0 {
		return b.Adapter.BooleanLiteral(false), nil
	}

	return b.Adapter.BuildStringCondition(expr, op, fragment.Param(values[0])), nil
}

func (b *FilterBuilder) arrayOp(op query.Operator, expr *fragment.Fragment, values []any) *fragment.Fragment {
	var pgOp string

	switch op {
	case query.OpArrayContains:
		pgOp = "@>"
	case query.OpArrayContained:
		pgOp = "<@"
	case query.OpArrayOverlaps:
		pgOp = "&&"
	}

	return fragment.Infix(pgOp, expr, fragment.Param(values))
}
