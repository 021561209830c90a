package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pixelgardenlabs.io/pgl-publish/pkg/plog"
)

// runHooks executes the configured shell commands in order, stopping at the
// first failure. Each hook sees the site name and export directory in its
// environment.
func runHooks(ctx context.Context, phase string, commands []string, site, exportDir string) error {
	for _, command := range commands {
		if strings.TrimSpace(command) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		plog.Info("Running hook", "phase", phase, "command", command)
		cmd := shellCommand(ctx, command)
		cmd.Env = append(os.Environ(),
			"PGL_PUBLISH_SITE="+site,
			"PGL_PUBLISH_EXPORT_DIR="+exportDir,
			"PGL_PUBLISH_PHASE="+phase,
		)

		output, err := cmd.CombinedOutput()
		if len(output) > 0 {
			plog.Debug("Hook output", "phase", phase, "output", strings.TrimSpace(string(output)))
		}
		if err != nil {
			return fmt.Errorf("%s hook %q failed: %w", phase, command, err)
		}
	}
	return nil
}
