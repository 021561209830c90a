package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pixelgardenlabs.io/pgl-publish/pkg/config"
	"pixelgardenlabs.io/pgl-publish/pkg/plog"
)

var flagInitForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter " + config.ConfigFileName + " with an example site profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := configDir()
		if err != nil {
			return err
		}

		path := filepath.Join(dir, config.ConfigFileName)
		if _, err := os.Stat(path); err == nil && !flagInitForce {
			return fmt.Errorf("config file %s already exists; use --force to overwrite it", path)
		}

		cfg := config.NewDefault()
		cfg.Sites["example"] = config.SiteProfile{
			Label:           "Example site",
			ExportDir:       "/path/to/staatic-export",
			HasWiki:         true,
			WikiSnapshotDir: "/path/to/_wiki_latest",
			WikiRemotePath:  "/wiki",
			Endpoint: config.EndpointConfig{
				Protocol:   "ftp",
				Host:       "ftp.example.com",
				Port:       21,
				Username:   "deploy",
				RemotePath: "/",
			},
			Archive: config.ArchivePolicyConfig{
				Dir:       "/path/to/archives",
				Format:    "zip",
				Collision: "overwrite",
				Keep:      0,
			},
		}

		if err := cfg.Save(dir); err != nil {
			return err
		}

		plog.Info("Config file created", "path", path)
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\nEdit the 'example' profile before publishing. Passwords can also be set via PGL_PUBLISH_PASSWORD_<SITE>.\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
