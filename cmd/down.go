package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PierreExeter/stackup/internal/reconcile"
)

var (
	downVolumes  bool
	downNetworks bool
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the stack's containers",
	Long: `down stops and removes every container the stack owns, dependents
before their dependencies. Networks and volumes survive unless
explicitly requested with --networks and --volumes.`,
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

		report, err := newReconciler(rt, dir).Down(cmd.Context(), state, reconcile.DownOptions{
			RemoveNetworks: downNetworks,
			RemoveVolumes:  downVolumes,
		})
		if err != nil {
			return err
		}
		report.Print(cmd.OutOrStdout())
		if failed := report.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d of %d resources failed to tear down", len(failed), len(report.Results))
		}
		return nil
	},
}

func init() {
	downCmd.Flags().BoolVar(&downVolumes, "volumes", false, "also remove the stack's volumes")
	downCmd.Flags().BoolVar(&downNetworks, "networks", false, "also remove the stack's networks")
	rootCmd.AddCommand(downCmd)
}
