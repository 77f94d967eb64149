// Package duckdb implements dialect.Adapter for DuckDB. DuckDB's SQL
// surface tracks PostgreSQL closely (DATE_TRUNC, PERCENTILE_CONT,
// STDDEV_*), so this adapter embeds the postgres adapter and overrides
// only the handful of operations that differ — QUANTILE_CONT in place of
// PERCENTILE_CONT's WITHIN GROUP syntax, and capability flags.
//
// Grounded on other_examples/…developgo-rill…metricsview_aggregation.go,
// the pack's closest domain analogue: a metrics-view query builder that
// dispatches on drivers.DialectDuckDB while importing
// github.com/marcboeker/go-duckdb.
package duckdb

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/dialect/postgres"
	"github.com/accented-ai/semq/internal/fragment"
)

// Open returns a *sql.DB wired to the real go-duckdb driver.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}

	return db, nil
}

type Adapter struct {
	*postgres.Adapter
}

func New() *Adapter { return &Adapter{Adapter: postgres.New()} }

func (Adapter) Kind() dialect.Kind { return dialect.DuckDB }

func (Adapter) Capabilities() dialect.Capabilities {
	return dialect.Capabilities{
		SupportsStddev:               true,
		SupportsVariance:              true,
		SupportsPercentile:            true,
		SupportsWindowFunctions:       true,
		SupportsFrameClause:           true,
		SupportsLateralJoins:          true,
		SupportsPercentileSubqueries:  false,
	}
}

func (Adapter) BuildPercentile(expr *fragment.Fragment, percentile float64) *fragment.Fragment {
	p := strconv.FormatFloat(percentile, 'f', -1, 64)
	return fragment.Prefix("QUANTILE_CONT", expr, fragment.Lit(p))
}

func (Adapter) BuildStddev(expr *fragment.Fragment, sample bool) *fragment.Fragment {
	if sample {
		return fragment.Prefix("STDDEV_SAMP", expr)
	}

	return fragment.Prefix("STDDEV_POP", expr)
}

func (Adapter) BuildVariance(expr *fragment.Fragment, sample bool) *fragment.Fragment {
	if sample {
		return fragment.Prefix("VAR_SAMP", expr)
	}

	return fragment.Prefix("VAR_POP", expr)
}

func (Adapter) PreprocessTemplate(template string) string { return template }
