// Package fragment implements the immutable, parameterized SQL fragment
// algebra described in spec.md §9: every resolved piece of SQL — a column
// reference, a literal, a function call, a whole predicate tree — is a tree
// of Fragment values rather than a mutable string buffer. Fragments are
// never mutated after construction, so the same Fragment can be spliced
// into a CTE subquery and the outer query (or reused across unrelated
// compilations) without cross-contaminating bound parameters.
package fragment

import "strings"

// Kind discriminates the sum type. Keep this set closed; dispatch on it
// with a switch, never string-sniff a rendered fragment.
type Kind int

const (
	KindLiteral Kind = iota
	KindIdentifier
	KindParam
	KindInfix
	KindPrefix
	KindRaw
)

// Fragment is an immutable node in a SQL expression tree. All constructors
// return a fully-built, read-only value; there are no setters.
type Fragment struct {
	kind     Kind
	text     string // literal SQL (KindLiteral/KindRaw) or identifier name (KindIdentifier) or op/fn name (KindInfix/KindPrefix)
	value    any    // bound value, KindParam only
	children []*Fragment
	paren    bool // wrap the rendered infix expression in parentheses
}

// Lit wraps raw, already-safe SQL text (keywords, operators, punctuation)
// that carries no user-controlled value and therefore needs no parameter.
func Lit(sql string) *Fragment {
	return &Fragment{kind: KindLiteral, text: sql}
}

// Ident marks a column/table reference; the dialect renderer is responsible
// for quoting it, never the caller.
func Ident(name string) *Fragment {
	return &Fragment{kind: KindIdentifier, text: name}
}

// Param binds a single user/query-supplied value to a positional
// placeholder. This is the only constructor through which a runtime value
// enters the tree — spec.md §8 invariant 1 (parameter safety) holds because
// no other constructor accepts an arbitrary value.
func Param(v any) *Fragment {
	return &Fragment{kind: KindParam, value: v}
}

// Infix joins two or more children with " op " between them, e.g.
// Infix("AND", a, b, c) -> "(a AND b AND c)".
func Infix(op string, children ...*Fragment) *Fragment {
	return &Fragment{kind: KindInfix, text: op, children: children, paren: true}
}

// InfixUnparenthesized is Infix without the enclosing parens, used at the
// top of a WHERE/HAVING clause where the parens would be redundant noise.
func InfixUnparenthesized(op string, children ...*Fragment) *Fragment {
	return &Fragment{kind: KindInfix, text: op, children: children, paren: false}
}

// Prefix renders as "fn(child0, child1, ...)".
func Prefix(fn string, children ...*Fragment) *Fragment {
	return &Fragment{kind: KindPrefix, text: fn, children: children}
}

// Raw is an escape hatch for dialect adapters that must emit a snippet
// syntax the other constructors cannot express (e.g. SQLite's `strftime`
// modifier chains). The params are spliced into the parameter list at the
// position the raw text's placeholders occupy; callers are responsible for
// keeping `text`'s placeholder count equal to len(params).
func Raw(sql string, params ...any) *Fragment {
	f := &Fragment{kind: KindRaw, text: sql}
	for _, p := range params {
		f.children = append(f.children, Param(p))
	}

	return f
}

// IsNil reports whether f is a typed nil, the sentinel used throughout the
// builders for "this fragment could not be built, degrade gracefully".
func (f *Fragment) IsNil() bool { return f == nil }

// Kind exposes the discriminant for callers that need to special-case a
// fragment by its shape.
func (f *Fragment) Kind() Kind { return f.kind }

// Children returns the fragment's child nodes, or nil for leaves, for
// callers walking a tree.
func (f *Fragment) Children() []*Fragment { return f.children }

// Text exposes the literal/identifier/op text for leaf introspection.
func (f *Fragment) Text() string { return f.text }

// Clone returns a deep, structurally independent copy. Isolation (spec.md
// §4.2, §9) is achieved by composing over already-immutable children, so
// Clone is rarely required in practice — it exists for the one case where a
// caller wants to guarantee no accidental aliasing survives a mutation
// elsewhere (none of this package's own code mutates a Fragment, but
// defensive copies cost little given fragments are typically tiny trees).
func (f *Fragment) Clone() *Fragment {
	if f == nil {
		return nil
	}

	clone := &Fragment{kind: f.kind, text: f.text, value: f.value, paren: f.paren}
	for _, c := range f.children {
		clone.children = append(clone.children, c.Clone())
	}

	return clone
}

// Quoter is the dialect side of Render: quoting and placeholder style are
// dialect concerns layered on top of this package's otherwise
// dialect-agnostic tree.
type Quoter interface {
	// QuoteIdentifier returns name quoted per the dialect's rules.
	QuoteIdentifier(name string) string
	// Placeholder returns the SQL text for the parameter at position
	// (1-based) idx, e.g. "$1" for Postgres/DuckDB, "?" for MySQL/SQLite.
	Placeholder(idx int) string
	// ReusesParams reports whether the dialect's placeholder syntax lets
	// the same bound value be referenced by position more than once in a
	// single statement ($1, $1 — true for Postgres/DuckDB) as opposed to
	// positional "?" placeholders that each consume a fresh slot (MySQL/
	// SQLite). When true, Render deduplicates by Param pointer identity
	// (spec.md §8 invariant 5: a filter-cache fragment spliced into both
	// a CTE subquery and the outer query contributes its value once).
	// When false, Render still emits a correct statement — it just binds
	// the value again at each occurrence, since "?" has no way to
	// reference an earlier slot.
	ReusesParams() bool
}

// Render walks the tree and produces SQL text plus the ordered parameter
// slice, using q to quote identifiers and format placeholders. A Param
// leaf contributes one entry to params the first time it is encountered;
// if the identical *Fragment pointer recurs later in the same tree (the
// filter cache hands back the same fragment for splicing into more than
// one position) and q.ReusesParams() is true, Render re-emits the
// original placeholder instead of appending a duplicate value.
func Render(f *Fragment, q Quoter) (string, []any) {
	var b strings.Builder

	state := &renderState{seen: make(map[*Fragment]int)}
	params := renderInto(&b, f, q, nil, state)

	return b.String(), params
}

type renderState struct {
	seen map[*Fragment]int // Param pointer -> 1-based placeholder index already assigned
}

func renderInto(b *strings.Builder, f *Fragment, q Quoter, params []any, state *renderState) []any {
	if f == nil {
		b.WriteString("NULL")
		return params
	}

	switch f.kind {
	case KindLiteral:
		b.WriteString(f.text)
	case KindIdentifier:
		b.WriteString(q.QuoteIdentifier(f.text))
	case KindParam:
		if q.ReusesParams() {
			if idx, ok := state.seen[f]; ok {
				b.WriteString(q.Placeholder(idx))
				break
			}
		}

		params = append(params, f.value)
		idx := len(params)
		state.seen[f] = idx
		b.WriteString(q.Placeholder(idx))
	case KindInfix:
		if f.paren {
			b.WriteByte('(')
		}

		for i, c := range f.children {
			if i > 0 && f.text != concatMarker {
				b.WriteByte(' ')
				b.WriteString(f.text)
				b.WriteByte(' ')
			}

			params = renderInto(b, c, q, params, state)
		}

		if f.paren {
			b.WriteByte(')')
		}
	case KindPrefix:
		b.WriteString(f.text)
		b.WriteByte('(')

		for i, c := range f.children {
			if i > 0 {
				b.WriteString(", ")
			}

			params = renderInto(b, c, q, params, state)
		}

		b.WriteByte(')')
	case KindRaw:
		// f.text may contain '?' placeholders positioned exactly where
		// f.children (all KindParam) should be substituted.
		parts := strings.Split(f.text, "?")
		for i, part := range parts {
			b.WriteString(part)

			if i < len(f.children) {
				params = renderInto(b, f.children[i], q, params, state)
			}
		}
	}

	return params
}

// As emits "fragment AS alias", used pervasively by the SELECT list
// builders (C8/C9) to alias measure/dimension expressions under their
// "Cube.member" name.
func As(f *Fragment, alias string) *Fragment {
	return &Fragment{kind: KindInfix, text: "AS", children: []*Fragment{f, Lit(quoteAlias(alias))}}
}

func quoteAlias(alias string) string {
	return `"` + strings.ReplaceAll(alias, `"`, `""`) + `"`
}

// Equal builds "a = b"; a thin convenience used by join-key and filter
// builders so they don't hand-roll Infix("=", ...) everywhere.
func Equal(a, b *Fragment) *Fragment { return Infix("=", a, b) }

// concatMarker is an unexported sentinel op text that tells renderInto to
// splice KindInfix children with no separator at all, used by Concat.
const concatMarker = "\x00concat\x00"

// Concat splices parts together with no separator, unparenthesized — used
// by calculated-measure template substitution, where the literal text
// between `{tokens}` already carries whatever spacing/operators the
// template author wrote.
func Concat(parts ...*Fragment) *Fragment {
	if len(parts) == 1 {
		return parts[0]
	}

	return &Fragment{kind: KindInfix, text: concatMarker, children: parts}
}

// And is a convenience over Infix("AND", ...) that drops nil children so
// callers can unconditionally append optional predicates.
func And(parts ...*Fragment) *Fragment {
	return combine("AND", parts)
}

// Or mirrors And for the OR connective.
func Or(parts ...*Fragment) *Fragment {
	return combine("OR", parts)
}

func combine(op string, parts []*Fragment) *Fragment {
	var kept []*Fragment

	for _, p := range parts {
		if p != nil {
			kept = append(kept, p)
		}
	}

	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return Infix(op, kept...)
	}
}
