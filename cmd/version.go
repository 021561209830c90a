package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixelgardenlabs.io/pgl-publish/pkg/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the application version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", buildinfo.Name, buildinfo.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
