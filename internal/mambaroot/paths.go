// SPDX-License-Identifier: Apache-2.0
// Package mambaroot derives every path nodepyenv touches from the mamba root.
package mambaroot

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dbkinghorn/nodepyenv/pkg/platform"
)

// Layout constants, relative to the mamba root.
const (
	BinaryName     = "micromamba"
	EnvsDir        = "envs"
	ConfigFileName = "nodepyenv.toml"
	downloadPrefix = ".micromamba-download-"
)

// Paths manages all paths under one mamba root for one platform.
type Paths struct {
	root     string
	platform platform.Platform
}

// New creates Paths for root. An empty root means the current directory.
func New(root string, p platform.Platform) *Paths {
	if root == "" {
		root = "."
	}
	return &Paths{root: root, platform: p}
}

// Root returns the mamba root directory.
func (p *Paths) Root() string {
	return p.root
}

// Platform returns the platform the layout was computed for.
func (p *Paths) Platform() platform.Platform {
	return p.platform
}

// ==================== Binary ====================

// Binary returns the provisioned micromamba path. The path always has a
// directory component so exec never resolves it through PATH.
func (p *Paths) Binary() string {
	path := filepath.Join(p.root, p.platform.BinaryName(BinaryName))
	if !strings.ContainsRune(path, filepath.Separator) {
		path = "." + string(filepath.Separator) + path
	}
	return path
}

// BinaryExists reports whether something is present at Binary().
func (p *Paths) BinaryExists() bool {
	_, err := os.Stat(p.Binary())
	return err == nil
}

// DownloadPattern is the os.CreateTemp pattern for in-flight downloads.
// Temp files live in the root so the final rename stays on one filesystem.
func (p *Paths) DownloadPattern() string {
	return downloadPrefix + "*"
}

// ==================== Environments ====================

// Descriptor resolves a descriptor file name relative to the root.
func (p *Paths) Descriptor(fileName string) string {
	if filepath.IsAbs(fileName) {
		return fileName
	}
	return filepath.Join(p.root, fileName)
}

// Env returns the directory of the named environment.
func (p *Paths) Env(name string) string {
	return filepath.Join(p.root, EnvsDir, name)
}

// Interpreter returns the conventional python executable of the named environment.
func (p *Paths) Interpreter(name string) string {
	return p.platform.InterpreterPath(p.Env(name))
}

// Config returns the default config file location.
func (p *Paths) Config() string {
	return filepath.Join(p.root, ConfigFileName)
}
