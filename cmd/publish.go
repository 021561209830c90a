package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pixelgardenlabs.io/pgl-publish/pkg/engine"
	"pixelgardenlabs.io/pgl-publish/pkg/plog"
	"pixelgardenlabs.io/pgl-publish/pkg/preflight"
	"pixelgardenlabs.io/pgl-publish/pkg/remotesync"
	"pixelgardenlabs.io/pgl-publish/pkg/sitearchive"
	"pixelgardenlabs.io/pgl-publish/pkg/wikisnapshot"
)

var (
	flagDryRun       bool
	flagWikiInit     string
	flagWikiInitFrom string
)

var publishCmd = &cobra.Command{
	Use:   "publish <site>",
	Short: "Run the full publish workflow for a site profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dir, err := loadConfig()
		if err != nil {
			return err
		}
		profile, err := requireSite(cfg, args[0])
		if err != nil {
			return err
		}

		wikiInit, err := parseWikiInit()
		if err != nil {
			return err
		}

		clientPath, err := remotesync.DiscoverClient(cfg.ClientPath, func(path string) {
			cfg.ClientPath = path
			if saveErr := cfg.Save(dir); saveErr != nil {
				plog.Warn("Could not persist discovered client path", "error", saveErr)
			}
		})
		if err != nil {
			return err
		}

		syncer := remotesync.NewScriptedSyncer(clientPath, remotesync.Endpoint{
			Protocol: profile.Endpoint.Protocol,
			Host:     profile.Endpoint.Host,
			Port:     profile.Endpoint.Port,
			Username: profile.Endpoint.Username,
			Password: profile.ResolvePassword(),
		}, func(line string) {
			if !plog.IsQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), color.HiBlackString("  %s", line))
			}
		})

		runner := engine.NewRunner(
			preflight.NewValidator(),
			syncer,
			sitearchive.NewArchiver(),
			wikisnapshot.NewReconciler(),
		)

		plan := engine.PlanFor(profile.HasWiki)
		fmt.Fprintf(cmd.OutOrStdout(), "Publishing %s (%d steps)\n", color.CyanString(profile.Name), len(plan))

		started := time.Now()
		run, err := runner.Run(cmd.Context(), engine.PublishTask{
			Profile:        profile,
			Hooks:          cfg.Hooks,
			LocateClient:   func() (string, error) { return clientPath, nil },
			DryRun:         flagDryRun,
			WikiInit:       wikiInit,
			WikiInitSource: flagWikiInitFrom,
			Observer: engine.Observer{
				OnStepStart: func(i int, kind engine.StepKind) {
					fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s ...\n", i+1, len(plan), kind.Label())
				},
				OnStepDone: func(i int, result engine.StepResult) {
					fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s %s\n", i+1, len(plan), result.Kind.Label(), stepStatusBadge(result.Status))
				},
			},
		})
		if err != nil {
			if errors.Is(err, engine.ErrRunActive) {
				return fmt.Errorf("publish rejected: %w", err)
			}
			return err
		}

		renderRunSummary(cmd, run, time.Since(started))
		switch run.Outcome {
		case engine.RunSucceeded:
			return nil
		case engine.RunActionRequired:
			return errors.New("publish paused, operator action required")
		default:
			return fmt.Errorf("publish %s", run.Outcome)
		}
	},
}

func init() {
	publishCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "validate and show the plan without changing anything")
	publishCmd.Flags().StringVar(&flagWikiInit, "wiki-init", "", "initialize a missing wiki snapshot: 'remote' pulls it from the server")
	publishCmd.Flags().StringVar(&flagWikiInitFrom, "wiki-init-from", "", "initialize a missing wiki snapshot from an existing local folder")
	rootCmd.AddCommand(publishCmd)
}

func parseWikiInit() (engine.WikiInitMode, error) {
	if flagWikiInit != "" && flagWikiInitFrom != "" {
		return engine.WikiInitNone, errors.New("--wiki-init and --wiki-init-from are mutually exclusive")
	}
	if flagWikiInitFrom != "" {
		return engine.WikiInitAdopt, nil
	}
	switch flagWikiInit {
	case "":
		return engine.WikiInitNone, nil
	case "remote":
		return engine.WikiInitRemote, nil
	default:
		return engine.WikiInitNone, fmt.Errorf("unknown --wiki-init mode %q, only 'remote' is supported", flagWikiInit)
	}
}

func stepStatusBadge(status engine.StepStatus) string {
	switch status {
	case engine.StatusSucceeded:
		return color.GreenString("ok")
	case engine.StatusFailed:
		return color.RedString("FAILED")
	case engine.StatusSkipped:
		return color.YellowString("skipped")
	case engine.StatusAborted:
		return color.YellowString("aborted")
	default:
		return status.String()
	}
}

func renderRunSummary(cmd *cobra.Command, run *engine.WorkflowRun, elapsed time.Duration) {
	out := cmd.OutOrStdout()

	switch run.Outcome {
	case engine.RunSucceeded:
		fmt.Fprintf(out, "\n%s in %s\n", color.GreenString("Publish completed"), elapsed.Round(time.Millisecond))
	case engine.RunAborted:
		fmt.Fprintf(out, "\n%s after %s\n", color.YellowString("Publish aborted"), elapsed.Round(time.Millisecond))
	case engine.RunActionRequired:
		fmt.Fprintf(out, "\n%s: %s\n", color.YellowString("Publish paused, action required"), run.Diagnostic)
	default:
		fmt.Fprintf(out, "\n%s after %s: %s\n", color.RedString("Publish failed"), elapsed.Round(time.Millisecond), run.Diagnostic)
	}

	if run.LivePublished && run.Outcome != engine.RunSucceeded {
		fmt.Fprintln(out, color.YellowString("Note: the live site was already changed before the failure."))
	}
	if run.FilesTransferred > 0 {
		fmt.Fprintf(out, "Files transferred: %d\n", run.FilesTransferred)
	}
}
