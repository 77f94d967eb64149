package model

// QueryContext is the immutable per-request context threaded into every
// cube's relation resolver and expression closure (spec.md §3). DB is left
// as `any` because the compiler never dereferences it — it exists only so
// a RelationResolver implementation can, if it wants, inspect a handle to
// the executing database (e.g. to decide which of two equivalent security
// predicates is cheaper); the compiler itself performs no I/O.
type QueryContext struct {
	DB              any
	SecurityContext any
}

// NewQueryContext builds a QueryContext. SecurityContext is opaque to the
// compiler (spec.md §3) — callers pass whatever their row-level-security
// layer needs (a tenant ID, a claims struct, etc).
func NewQueryContext(db, securityContext any) *QueryContext {
	return &QueryContext{DB: db, SecurityContext: securityContext}
}
