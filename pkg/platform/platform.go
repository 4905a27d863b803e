// SPDX-License-Identifier: Apache-2.0
// Package platform maps the host operating system onto the closed set of
// platforms micromamba is provisioned for.
package platform

import (
	"fmt"
	"path/filepath"
	"runtime"

	nperrors "github.com/dbkinghorn/nodepyenv/pkg/errors"
)

// OS name constants matching runtime.GOOS values.
const (
	Linux   = "linux"
	Windows = "windows"
)

// Platform is a supported host platform. The zero value is Unsupported.
type Platform int

const (
	Unsupported Platform = iota
	PlatformLinux
	PlatformWindows
)

// Detect returns the platform for a GOOS value.
func Detect(goos string) Platform {
	switch goos {
	case Linux:
		return PlatformLinux
	case Windows:
		return PlatformWindows
	default:
		return Unsupported
	}
}

// Host returns the platform of the running process.
func Host() Platform {
	return Detect(runtime.GOOS)
}

// Require is like Detect but reports an unsupported goos as an
// ErrUnsupportedPlatform error.
func Require(goos string) (Platform, error) {
	p := Detect(goos)
	if p == Unsupported {
		return Unsupported, fmt.Errorf("%w: %s", nperrors.ErrUnsupportedPlatform, goos)
	}
	return p, nil
}

func (p Platform) String() string {
	switch p {
	case PlatformLinux:
		return Linux
	case PlatformWindows:
		return Windows
	default:
		return "unsupported"
	}
}

// Segment returns the platform identifier used in micromamba download URLs.
func (p Platform) Segment() string {
	switch p {
	case PlatformLinux:
		return "linux-64"
	case PlatformWindows:
		return "win-64"
	default:
		return ""
	}
}

// BinaryName returns name with the platform executable suffix.
func (p Platform) BinaryName(name string) string {
	if p == PlatformWindows {
		return name + ".exe"
	}
	return name
}

// ArchiveMember is the path of the micromamba executable inside the conda
// package served by the archive download source.
func (p Platform) ArchiveMember() string {
	switch p {
	case PlatformWindows:
		return "Library/bin/micromamba.exe"
	case PlatformLinux:
		return "bin/micromamba"
	default:
		return ""
	}
}

// InterpreterPath returns the python executable inside an environment directory.
//
//	windows -> <envDir>/python.exe
//	others  -> <envDir>/bin/python
func (p Platform) InterpreterPath(envDir string) string {
	if p == PlatformWindows {
		return filepath.Join(envDir, "python.exe")
	}
	return filepath.Join(envDir, "bin", "python")
}

// HasExecBit reports whether files need an explicit executable permission.
func (p Platform) HasExecBit() bool {
	return p != PlatformWindows
}
