//go:build windows

package runner

import (
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// Keep child console windows from flashing on screen.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}
