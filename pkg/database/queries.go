package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/accented-ai/semq/internal/errs"
)

// QueryHelper runs a compiled pkg/semq Result's SQL/Params through a Pool,
// leaving row scanning to the caller's scanFunc.
type QueryHelper struct {
	pool *Pool
}

// NewQueryHelper binds a QueryHelper to pool.
func NewQueryHelper(pool *Pool) *QueryHelper {
	return &QueryHelper{pool: pool}
}

// FetchAll runs query with args and calls scanFunc once per returned row.
func (qh *QueryHelper) FetchAll(
	ctx context.Context,
	query string,
	scanFunc func(pgx.Rows) error,
	args ...any,
) error {
	rows, err := qh.pool.Query(ctx, query, args...)
	if err != nil {
		return errs.WrapError("execute query", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scanFunc(rows); err != nil {
			return errs.WrapError("scan row", err)
		}
	}

	if err := rows.Err(); err != nil {
		return errs.WrapError("iterate rows", err)
	}

	return nil
}

// FetchOne runs query with args expecting a single row.
func (qh *QueryHelper) FetchOne(
	ctx context.Context,
	query string,
	scanFunc func(pgx.Row) error,
	args ...any,
) error {
	row := qh.pool.QueryRow(ctx, query, args...)
	if err := scanFunc(row); err != nil {
		return errs.WrapError("scan row", err)
	}

	return nil
}
