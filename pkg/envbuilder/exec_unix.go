//go:build unix

package envbuilder

import (
	"os/exec"
	"syscall"
)

// setGracefulShutdown makes context cancellation interrupt micromamba with
// SIGINT so it can clean up its lock files, instead of killing it.
func setGracefulShutdown(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGINT)
	}
}
