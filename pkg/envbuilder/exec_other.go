//go:build !unix

package envbuilder

import "os/exec"

// setGracefulShutdown is a no-op where SIGINT is not available; cmd.Cancel
// keeps its default of killing the process.
func setGracefulShutdown(cmd *exec.Cmd) {}
