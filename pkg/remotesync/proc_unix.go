//go:build !windows

package remotesync

import (
	"os/exec"
	"syscall"
)

// configureProcAttributes puts the client into its own process group so a
// cancellation signal aimed at it does not also hit our own process.
func configureProcAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
