package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/pkg/semq"
)

type explainConfig struct {
	registry string
	query    string
	dialect  string
	output   string
}

func newExplainCommand() *cobra.Command {
	cfg := &explainConfig{}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show the query plan without printing SQL",
		Long: `Explain compiles a semantic query just like compile, but prints only the
chosen plan — primary cube, direct joins, and pre-aggregation CTE aliases
— useful for inspecting fan-out decisions before running the query.`,
		Example: `  semqc explain --registry cubes.json --query orders.json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runExplain(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.registry, "registry", "", "Path to the cube registry JSON file")
	cmd.Flags().StringVar(&cfg.query, "query", "", "Path to the semantic query JSON file")
	cmd.Flags().StringVar(&cfg.dialect, "dialect", "postgres", "Target dialect: postgres|mysql|sqlite|duckdb")
	cmd.Flags().StringVarP(&cfg.output, "output", "o", "-", "Output file path (use '-' for stdout)")

	cmd.MarkFlagRequired("registry") //nolint:errcheck
	cmd.MarkFlagRequired("query")    //nolint:errcheck

	return cmd
}

func runExplain(cfg *explainConfig) error {
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

	fmt.Fprintf(os.Stderr, "Planning query...\n")

	ann, err := compiler.Explain(q, semq.NewQueryContext(nil, nil), time.Now())
	if err != nil {
		return errs.WrapError("explain query", err)
	}

	data, err := json.MarshalIndent(ann, "", "  ")
	if err != nil {
		return errs.WrapError("marshal annotation", err)
	}

	return writeOutput(cfg.output, data)
}
