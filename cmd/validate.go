package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PierreExeter/stackup/internal/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the manifest and check it for cycles without touching the runtime",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, _, err := loadState()
		if err != nil {
			return err
		}
		g, err := graph.Build(state)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "manifest OK: project %s, %d services, %d networks, %d volumes\n",
			state.Project, len(state.Services), len(state.Networks), len(state.Volumes))
		fmt.Fprintf(cmd.OutOrStdout(), "start order: %s\n", strings.Join(g.StartOrder(), " -> "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
