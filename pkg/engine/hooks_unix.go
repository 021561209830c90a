//go:build !windows

package engine

import (
	"context"
	"os/exec"
	"syscall"
)

// shellCommand wraps a hook command line in the user's shell. The hook runs
// in its own process group so cancellation signals are scoped to it.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}
