package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the manifest template and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveManifest()
		if err != nil {
			return err
		}
		data, err := renderManifest(path, filepath.Dir(path))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
