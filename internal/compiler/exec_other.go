//go:build !unix && !windows

package compiler

import "os/exec"

// configureProcess is a no-op where process groups are unavailable
func configureProcess(cmd *exec.Cmd) {}
