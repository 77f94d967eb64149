// Package cli implements the semqc command-line front end over pkg/semq,
// adapted from the teacher's cobra-based internal/cli package (root
// command + one subcommand per verb, each with its own flag-bound config
// struct).
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/accented-ai/semq/internal/errs"
)

// BuildInfo carries version metadata injected at link time, mirroring the
// teacher's cmd/pgtofu version ldflags convention.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Execute builds and runs the semqc root command.
func Execute(ctx context.Context, info BuildInfo) error {
	rootCmd := newRootCommand()
	rootCmd.AddCommand(
		newCompileCommand(),
		newExplainCommand(),
		newVersionCommand(info),
	)

	return errs.WrapError("execute command", rootCmd.ExecuteContext(ctx))
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "semqc",
		Short: "Semantic query compiler",
		Long: `semqc compiles declarative semantic queries — measures, dimensions,
filters, time ranges — against a JSON-described cube registry into
parameterized SQL for PostgreSQL, MySQL, SQLite, or DuckDB.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("semqc %s\n", info.Version)
			fmt.Printf("  commit:     %s\n", info.Commit)
			fmt.Printf("  built:      %s\n", info.BuildTime)
		},
	}
}
