// Package cmd wires the command line surface of pgl-publish. Each command
// file owns one subcommand; the root command carries the flags and setup
// shared by all of them.
package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pixelgardenlabs.io/pgl-publish/pkg/buildinfo"
	"pixelgardenlabs.io/pgl-publish/pkg/config"
	"pixelgardenlabs.io/pgl-publish/pkg/plog"
)

var (
	flagConfigDir string
	flagLogLevel  string
	flagQuiet     bool
	flagNoColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "pgl-publish",
	Short: "Publish static site exports with wiki round trip and dated archives",
	Long: buildinfo.Name + ` pushes a static site export to its server, keeps the
site's wiki snapshot consistent with the live wiki, and writes a dated
archive of what went out. Site profiles live in ` + config.ConfigFileName + `.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagNoColor {
			color.NoColor = true
		}
		plog.SetQuiet(flagQuiet)
		plog.SetLevel(plog.LevelFromString(flagLogLevel))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "directory holding "+config.ConfigFileName+" (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: 'debug', 'info', 'warn' or 'error'")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
}

// Execute runs the CLI with the given context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// configDir resolves the effective configuration directory.
func configDir() (string, error) {
	if flagConfigDir != "" {
		return flagConfigDir, nil
	}
	return config.DefaultDir()
}

// loadConfig loads the profile store from the effective directory.
func loadConfig() (config.Config, string, error) {
	dir, err := configDir()
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, dir, nil
}

// requireSite resolves the site argument against the loaded config.
func requireSite(cfg config.Config, name string) (config.SiteProfile, error) {
	profile, err := cfg.Site(name)
	if err != nil {
		known := cfg.SiteNames()
		if len(known) == 0 {
			return config.SiteProfile{}, fmt.Errorf("%w; no profiles configured yet, run 'pgl-publish init' first", err)
		}
		return config.SiteProfile{}, fmt.Errorf("%w; known profiles: %v", err, known)
	}
	return profile, nil
}
