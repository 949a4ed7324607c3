//go:build windows

package compiler

import (
	"os/exec"
	"syscall"
)

// configureProcess hides the console window on Windows
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}
