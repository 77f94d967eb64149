package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/pkg/database"
	"github.com/accented-ai/semq/pkg/semq"
)

type compileConfig struct {
	registry    string
	query       string
	dialect     string
	output      string
	databaseURL string
}

func newCompileCommand() *cobra.Command {
	cfg := &compileConfig{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a semantic query to parameterized SQL",
		Long: `Compile reads a cube registry and a semantic query, both as JSON files,
and prints the resulting parameterized SQL statement plus its bound
parameters as JSON.`,
		Example: `  # Compile against Postgres
  semqc compile --registry cubes.json --query orders.json --dialect postgres

  # Write the result to a file
  semqc compile --registry cubes.json --query orders.json --output result.json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCompile(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.registry, "registry", "", "Path to the cube registry JSON file")
	cmd.Flags().StringVar(&cfg.query, "query", "", "Path to the semantic query JSON file")
	cmd.Flags().StringVar(&cfg.dialect, "dialect", "postgres", "Target dialect: postgres|mysql|sqlite|duckdb")
	cmd.Flags().StringVarP(&cfg.output, "output", "o", "-", "Output file path (use '-' for stdout)")
	cmd.Flags().StringVar(&cfg.databaseURL, "database-url", "",
		"Postgres connection URL to run the compiled query against (optional; omit to only print SQL)")

	cmd.MarkFlagRequired("registry") //nolint:errcheck
	cmd.MarkFlagRequired("query")    //nolint:errcheck

	return cmd
}

type compileOutput struct {
	SQL        string         `json:"sql"`
	Params     []any          `json:"params"`
	Annotation semq.Annotation `json:"annotation"`
}

func runCompile(cfg *compileConfig) error {
	reg, err := loadRegistry(cfg.registry)
	if err != nil {
		return err
	}

	q, err := loadQuery(cfg.query)
	if err != nil {
		return err
	}

	adapter, err := resolveAdapter(cfg.dialect)
	if err != nil {
		return err
	}

	compiler := semq.New(reg, adapter)

	fmt.Fprintf(os.Stderr, "Compiling query...\n")

	res, err := compiler.Compile(q, semq.NewQueryContext(nil, nil), time.Now())
	if err != nil {
		return errs.WrapError("compile query", err)
	}

	fmt.Fprintf(os.Stderr, "Primary cube: %s\n", res.Annotation.PrimaryCube)

	if len(res.Annotation.CTEAliases) > 0 {
		fmt.Fprintf(os.Stderr, "Pre-aggregation CTEs: %v\n", res.Annotation.CTEAliases)
	}

	data, err := json.MarshalIndent(compileOutput{SQL: res.SQL, Params: res.Params, Annotation: res.Annotation}, "", "  ")
	if err != nil {
		return errs.WrapError("marshal result", err)
	}

	if err := writeOutput(cfg.output, data); err != nil {
		return err
	}

	if cfg.databaseURL == "" {
		return nil
	}

	return runCompiledQuery(cfg.databaseURL, res.SQL, res.Params)
}

// runCompiledQuery opens a pool against databaseURL, runs sql with params,
// and prints the returned rows as a JSON array to stdout. It exercises
// pkg/database as the compiler's optional execution layer (spec.md §3:
// the compiler itself never performs I/O).
func runCompiledQuery(databaseURL, sql string, params []any) error {
	ctx := context.Background()

	pool, err := database.NewPoolFromURL(ctx, databaseURL)
	if err != nil {
		return errs.WrapError("connect to database", err)
	}
	defer pool.Close()

	fmt.Fprintf(os.Stderr, "Running compiled query against %s...\n", databaseURL)

	rows, err := pool.Query(ctx, sql, params...)
	if err != nil {
		return errs.WrapError("execute compiled query", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))

	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	var results []map[string]any

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return errs.WrapError("scan row", err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return errs.WrapError("iterate rows", err)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errs.WrapError("marshal rows", err)
	}

	fmt.Println(string(data))

	return nil
}
