package main

import (
	"context"
	"os"
	"os/signal"

	"pixelgardenlabs.io/pgl-publish/cmd"
	"pixelgardenlabs.io/pgl-publish/pkg/buildinfo"
	"pixelgardenlabs.io/pgl-publish/pkg/plog"
)

func main() {
	// Cancel the run context on the first interrupt. Steps finish what they
	// are doing; a second interrupt kills the process the usual way.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
