package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// ExitError carries a process exit code through the cobra error path.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "veriflow",
		Short: "Veriflow - Compliance Analysis Pipeline Engine",
		Long: `Veriflow executes declarative compliance-analysis runbooks.

A runbook declares artifacts produced by connectors (filesystem, sqlite,
static content) and processors (pattern analysis with LLM-backed finding
validation). Veriflow plans the artifact dependency graph, pins schema
versions per edge, and executes the graph with bounded parallelism and
deterministic failure semantics.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}
