//go:build !unix

package runner

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// CommandContext already kills the direct child on cancellation.
func killProcessGroup(pid int) {}
