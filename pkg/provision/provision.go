// SPDX-License-Identifier: Apache-2.0
// Package provision makes sure a micromamba executable exists under the
// mamba root, downloading it once if it is missing.
//
// Existence is the only check: a file already present at the binary path is
// used as is. Downloads go to a temporary file in the root and are renamed
// into place only once complete, so an interrupted download never leaves a
// truncated binary behind.
package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"

	"github.com/hashicorp/go-hclog"

	"github.com/dbkinghorn/nodepyenv/internal/config"
	"github.com/dbkinghorn/nodepyenv/internal/mambaroot"
	nperrors "github.com/dbkinghorn/nodepyenv/pkg/errors"
	"github.com/dbkinghorn/nodepyenv/pkg/platform"
)

// Default download endpoints.
const (
	ReleaseBaseURL = "https://github.com/mamba-org/micromamba-releases/releases/latest/download"
	ArchiveBaseURL = "https://micro.mamba.pm/api/micromamba"
)

// Options configures a Provisioner. Zero values select the defaults.
type Options struct {
	Source  config.Source
	BaseURL string
	Mode    os.FileMode
	// GOOS overrides runtime.GOOS.
	GOOS   string
	Client *http.Client
	Logger hclog.Logger
	// Out receives human-readable progress messages.
	Out io.Writer
}

// Provisioner locates or downloads micromamba.
type Provisioner struct {
	source  config.Source
	baseURL string
	mode    os.FileMode
	goos    string
	client  *http.Client
	logger  hclog.Logger
	out     io.Writer
}

// New creates a Provisioner.
func New(opts Options) *Provisioner {
	p := &Provisioner{
		source:  opts.Source,
		baseURL: opts.BaseURL,
		mode:    opts.Mode,
		goos:    opts.GOOS,
		client:  opts.Client,
		logger:  opts.Logger,
		out:     opts.Out,
	}
	if p.source == "" {
		p.source = config.SourceRelease
	}
	if p.mode == 0 {
		p.mode = config.DefaultBinaryMode
	}
	if p.goos == "" {
		p.goos = runtime.GOOS
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.logger == nil {
		p.logger = hclog.NewNullLogger()
	}
	if p.out == nil {
		p.out = io.Discard
	}
	return p
}

// EnsureBinary returns the path of micromamba under root, downloading it
// first if nothing exists there. Failures are ErrUnsupportedPlatform or
// ErrDownloadFailed; an unsupported platform is reported before any
// network access.
func (p *Provisioner) EnsureBinary(ctx context.Context, root string) (string, error) {
	paths := mambaroot.New(root, platform.Detect(p.goos))
	binary := paths.Binary()

	if paths.BinaryExists() {
		fmt.Fprintf(p.out, "\nmicromamba found\n")
		p.logger.Debug("📦 micromamba found", "path", binary)
		return binary, nil
	}

	fmt.Fprintf(p.out, "\nmicromamba not found, downloading micromamba\n")

	plat, err := platform.Require(p.goos)
	if err != nil {
		p.logger.Error("❌ Unsupported platform", "os", p.goos)
		return "", err
	}

	url, unpacker := p.endpoint(plat)
	fmt.Fprintf(p.out, "Downloading micromamba from %s\n", url)
	p.logger.Info("⬇️ Downloading micromamba", "url", url, "format", unpacker.Name(), "dest", binary)

	if err := p.download(ctx, url, unpacker, paths); err != nil {
		p.logger.Error("❌ Download failed", "url", url, "error", err)
		return "", fmt.Errorf("%w: %w", nperrors.ErrDownloadFailed, err)
	}

	p.logger.Debug("✅ micromamba installed", "path", binary)
	return binary, nil
}

func (p *Provisioner) endpoint(plat platform.Platform) (string, Unpacker) {
	base := p.baseURL
	switch p.source {
	case config.SourceArchive:
		if base == "" {
			base = ArchiveBaseURL
		}
		return fmt.Sprintf("%s/%s/latest", base, plat.Segment()), TarBz2Unpacker{Member: plat.ArchiveMember()}
	default:
		if base == "" {
			base = ReleaseBaseURL
		}
		return fmt.Sprintf("%s/micromamba-%s", base, plat.Segment()), RawUnpacker{}
	}
}

func (p *Provisioner) download(ctx context.Context, url string, unpacker Unpacker, paths *mambaroot.Paths) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(paths.Root(), paths.DownloadPattern())
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := unpacker.Unpack(resp.Body, tmpFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("write binary: %w", err)
	}

	if paths.Platform().HasExecBit() {
		if err := os.Chmod(tmpPath, p.mode); err != nil {
			return fmt.Errorf("make executable: %w", err)
		}
	}

	if err := os.Rename(tmpPath, paths.Binary()); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}
	committed = true
	return nil
}
