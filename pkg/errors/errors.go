// SPDX-License-Identifier: Apache-2.0
// Package errors defines the failure kinds of nodepyenv and their exit codes.
package errors

import "errors"

var (
	// Provisioning errors 📦
	ErrUnsupportedPlatform = errors.New("❌ unsupported platform")
	ErrDownloadFailed      = errors.New("❌ error downloading micromamba")

	// Descriptor errors 📄
	ErrDescriptorMissing = errors.New("❌ environment file not found")
	ErrNameFieldMissing  = errors.New("❌ environment file has no name entry")

	// Execution errors 🚀
	ErrChildProcessFailed = errors.New("❌ error creating conda environment")

	// Configuration errors 🔧
	ErrInvalidConfig = errors.New("❌ invalid configuration")
)

// Exit codes for different error types
const (
	ExitSuccess             = 0
	ExitPanic               = 101
	ExitInvalidArgs         = 105
	ExitIOError             = 106
	ExitUnsupportedPlatform = 110
	ExitDownloadError       = 111
	ExitDescriptorMissing   = 112
	ExitNameFieldMissing    = 113
	ExitExecutionError      = 114
)

// ExitCode maps an error returned by the provisioner or builder to the
// process exit status. Errors of unknown kind map to ExitIOError.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrUnsupportedPlatform):
		return ExitUnsupportedPlatform
	case errors.Is(err, ErrDownloadFailed):
		return ExitDownloadError
	case errors.Is(err, ErrDescriptorMissing):
		return ExitDescriptorMissing
	case errors.Is(err, ErrNameFieldMissing):
		return ExitNameFieldMissing
	case errors.Is(err, ErrChildProcessFailed):
		return ExitExecutionError
	case errors.Is(err, ErrInvalidConfig):
		return ExitInvalidArgs
	default:
		return ExitIOError
	}
}
