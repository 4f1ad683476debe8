package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/animus-coder/oraclebench/internal/scenario"
)

// NewScenariosCmd lists the registered evaluation scenarios.
func NewScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List available evaluation scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, name := range scenario.Names() {
				sc, err := scenario.Get(name)
				if err != nil {
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", name, sc.Description)
			}
		},
	}
}
