package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create or update the stack until it matches the manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, dir, err := loadState()
		if err != nil {
			return err
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := rt.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("runtime unreachable: %w", err)
		}

		report, err := newReconciler(rt, dir).Up(cmd.Context(), state)
		if err != nil {
			return err
		}
		report.Print(cmd.OutOrStdout())
		if failed := report.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d of %d resources failed to converge", len(failed), len(report.Results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
}
