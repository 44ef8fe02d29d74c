package cmd

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

// Set from main via Execute, wired through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stackup version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stackup %s (commit %s, %s)\n", version, commit, goruntime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
