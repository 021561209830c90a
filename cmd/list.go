package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pixelgardenlabs.io/pgl-publish/pkg/metafile"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured site profiles and their last publish",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		names := cfg.SiteNames()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No site profiles configured. Run 'pgl-publish init' to create the config file.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SITE\tWIKI\tEXPORT DIR\tLAST PUBLISH")
		for _, name := range names {
			profile := cfg.Sites[name]

			wiki := "-"
			if profile.HasWiki {
				wiki = "yes"
			}

			lastPublish := "never"
			receipt, err := metafile.Read(profile.ArchiveSiteDir())
			switch {
			case err == nil:
				lastPublish = receipt.FinishedAt.Format("2006-01-02 15:04")
			case !os.IsNotExist(err):
				lastPublish = "unreadable"
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, wiki, profile.ExportDir, lastPublish)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
