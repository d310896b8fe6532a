package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <runbook>...",
		Short: "Validate runbook files",
		Long: `Validate one or more runbook files without executing them.

Validation covers the YAML document schema, artifact ID syntax, component
type resolution, cycle detection, and schema version compatibility on
every edge.`,
		Example: `  # Validate a single runbook
  veriflow validate compliance.yaml

  # Validate several
  veriflow validate runbooks/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			failures := 0
			for _, path := range args {
				if _, _, err := loadAndPlan(cmd.Context(), path, log.Logger); err != nil {
					failures++
					fmt.Printf("FAIL  %s\n      %v\n", path, err)
					continue
				}
				fmt.Printf("OK    %s\n", path)
			}

			if failures > 0 {
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d runbook(s) invalid", failures)}
			}
			return nil
		},
	}

	return cmd
}
