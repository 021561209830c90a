package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pixelgardenlabs.io/pgl-publish/pkg/preflight"
	"pixelgardenlabs.io/pgl-publish/pkg/remotesync"
)

var validateCmd = &cobra.Command{
	Use:   "validate <site>",
	Short: "Run the preflight checks for a site profile without publishing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		profile, err := requireSite(cfg, args[0])
		if err != nil {
			return err
		}

		validator := preflight.NewValidator()
		report, err := validator.Run(cmd.Context(), preflight.ValidateTask{
			Profile: profile,
			LocateClient: func() (string, error) {
				return remotesync.DiscoverClient(cfg.ClientPath, nil)
			},
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if report.OK() {
			fmt.Fprintf(out, "%s %s is ready to publish\n", color.GreenString("ok"), profile.Name)
			return nil
		}

		for _, finding := range report.Findings {
			badge := color.RedString("fatal")
			if finding.Severity == preflight.SeverityActionRequired {
				badge = color.YellowString("action required")
			}
			fmt.Fprintf(out, "%s %s: %s\n", badge, finding.Category, finding.Message)
			if finding.Remedy != "" {
				fmt.Fprintf(out, "  remedy: %s\n", finding.Remedy)
			}
		}
		return fmt.Errorf("validation failed with %d finding(s)", len(report.Findings))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
