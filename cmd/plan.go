package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what up would change without touching the runtime",
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

		plan, err := newReconciler(rt, dir).Plan(cmd.Context(), state)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if planJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		}
		if plan.Empty() {
			fmt.Fprintln(out, "no changes: stack matches the manifest")
			return nil
		}
		for _, op := range plan.Operations {
			fmt.Fprintf(out, "%-20s %-30s %s\n", op.Kind, op.Name, op.Reason)
		}
		for _, name := range plan.Unchanged {
			fmt.Fprintf(out, "%-20s %s\n", "unchanged", name)
		}
		return nil
	},
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "emit the plan as JSON")
	rootCmd.AddCommand(planCmd)
}
