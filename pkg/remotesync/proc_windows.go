//go:build windows

package remotesync

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureProcAttributes detaches the client from our console window and
// process group so cancellation signals are delivered only where intended.
func configureProcAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}
