//go:build windows

package engine

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// shellCommand wraps a hook command line in cmd.exe. The hook runs in its
// own process group so cancellation signals are scoped to it.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "cmd", "/C", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
	return cmd
}
