// Package database is the optional pgx-backed execution layer a caller can
// use to run a pkg/semq Result against a live Postgres connection — the
// compiler itself performs no I/O (spec.md §3), so this package is kept
// separate and importing it is never required to use pkg/semq. Grounded
// on the teacher's pkg/database connection pool, trimmed to the
// query/scan surface a compiled SELECT actually needs.
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accented-ai/semq/internal/errs"
)

// Pool wraps a pgxpool.Pool for running compiled queries.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPoolFromURL opens a connection pool against url and verifies it with
// a ping before returning.
func NewPoolFromURL(ctx context.Context, url string) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errs.WrapError("parse pool config", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errs.WrapError("create connection pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapError("ping database", err)
	}

	return &Pool{pool: pool}, nil
}

// Close releases the pool's connections.
func (p *Pool) Close() {
	p.pool.Close()
}

// Query runs sql with the compiled Result's bound params.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...) //nolint:wrapcheck
}

// QueryRow runs sql expecting exactly one row.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// CurrentDatabase reports the name of the database the pool is connected to.
func (p *Pool) CurrentDatabase(ctx context.Context) (string, error) {
	var dbName string

	err := p.pool.QueryRow(ctx, "SELECT current_database()").Scan(&dbName)
	if err != nil {
		return "", errs.WrapError("get current database", err)
	}

	return dbName, nil
}
