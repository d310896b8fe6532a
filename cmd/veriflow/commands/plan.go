package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/veriflow/veriflow/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "plan <runbook>",
		Short: "Build and display the execution plan",
		Long: `Load a runbook and build its execution plan without running it.

The plan shows the artifact dependency graph and the schema version pinned
on every edge. Planning fails on cycles, unknown component types, and
schema incompatibilities, so a successful plan means the runbook is
executable.`,
		Example: `  # Show the plan
  veriflow plan compliance.yaml

  # Export the dependency graph as Graphviz DOT
  veriflow plan compliance.yaml --dot | dot -Tsvg -o plan.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			_, plan, err := loadAndPlan(cmd.Context(), args[0], log.Logger)
			if err != nil {
				return err
			}

			if dot {
				fmt.Print(plan.ToDOT())
				return nil
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}

			fmt.Printf("Plan for runbook %q: %d artifact(s)\n\n", plan.Runbook.Name, len(plan.Runbook.Artifacts))
			for _, id := range sortedPlanIDs(plan.Schemas) {
				schemas := plan.Schemas[id]
				fmt.Printf("  %-30s -> %s\n", id, schemas.Output)
				for _, pred := range plan.DAG.Reverse[id] {
					fmt.Printf("    %-28s %s\n", "input "+pred, schemas.Inputs[pred])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "emit the dependency graph in Graphviz DOT format")

	return cmd
}

func sortedPlanIDs(schemas map[string]engine.ArtifactSchemas) []string {
	ids := make([]string, 0, len(schemas))
	for id := range schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
