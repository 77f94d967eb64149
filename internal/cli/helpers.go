package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/accented-ai/semq/internal/dialect"
	"github.com/accented-ai/semq/internal/dialect/duckdb"
	"github.com/accented-ai/semq/internal/dialect/mysql"
	"github.com/accented-ai/semq/internal/dialect/postgres"
	"github.com/accented-ai/semq/internal/dialect/sqlite"
	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/query"
	"github.com/accented-ai/semq/internal/registryjson"
	"github.com/accented-ai/semq/pkg/semq"
)

func loadRegistry(path string) (*semq.Registry, error) {
	fmt.Fprintf(os.Stderr, "Loading registry from: %s\n", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapError("read registry", err)
	}

	reg, err := registryjson.Load(data)
	if err != nil {
		return nil, errs.WrapError("parse registry", err)
	}

	return reg, nil
}

func loadQuery(path string) (semq.SemanticQuery, error) {
	fmt.Fprintf(os.Stderr, "Loading query from: %s\n", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return semq.SemanticQuery{}, errs.WrapError("read query", err)
	}

	var q query.SemanticQuery
	if err := json.Unmarshal(data, &q); err != nil {
		return semq.SemanticQuery{}, errs.WrapError("parse query", err)
	}

	return q, nil
}

func resolveAdapter(name string) (dialect.Adapter, error) {
	switch name {
	case "postgres", "":
		return postgres.New(), nil
	case "mysql":
		return mysql.New(), nil
	case "sqlite":
		return sqlite.New(), nil
	case "duckdb":
		return duckdb.New(), nil
	default:
		return nil, errs.WrapError("resolve dialect", fmt.Errorf("unknown dialect %q", name))
	}
}

func writeOutput(path string, data []byte) error {
	if path == "-" || path == "" {
		fmt.Println(string(data))
		return nil
	}

	outputDir := filepath.Dir(path)
	if outputDir != "." && outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return errs.WrapError("create output directory", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.WrapError("write output file", err)
	}

	return nil
}
