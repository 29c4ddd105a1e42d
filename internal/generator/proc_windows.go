//go:build windows

package generator

import "os/exec"

// Windows has no process groups reachable through syscall; only the worker
// itself is killed.
func isolateProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
