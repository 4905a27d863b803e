package provision

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbkinghorn/nodepyenv/internal/config"
	nperrors "github.com/dbkinghorn/nodepyenv/pkg/errors"
	"github.com/dbkinghorn/nodepyenv/pkg/platform"
)

var fakeBinary = []byte("#!/bin/sh\necho micromamba 2.0.0\n")

// fakeServer serves payload at every path and counts requests.
type fakeServer struct {
	*httptest.Server
	hits  atomic.Int32
	paths chan string
}

func newFakeServer(t *testing.T, status int, payload []byte) *fakeServer {
	t.Helper()
	fs := &fakeServer{paths: make(chan string, 16)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		fs.paths <- r.URL.Path
		w.WriteHeader(status)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func newProvisioner(srv *fakeServer, goos string, source config.Source) (*Provisioner, *bytes.Buffer) {
	var out bytes.Buffer
	return New(Options{
		Source:  source,
		BaseURL: srv.URL,
		GOOS:    goos,
		Client:  srv.Client(),
		Out:     &out,
	}), &out
}

func TestEnsureBinaryExistingSkipsDownload(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, fakeBinary)
	root := t.TempDir()
	existing := filepath.Join(root, "micromamba")
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o755))

	p, out := newProvisioner(srv, platform.Linux, config.SourceRelease)
	got, err := p.EnsureBinary(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, existing, got)
	assert.Zero(t, srv.hits.Load())
	assert.Contains(t, out.String(), "micromamba found")

	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "already here", string(content))
}

func TestEnsureBinaryUnsupportedPlatformMakesNoRequest(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, fakeBinary)
	root := t.TempDir()

	p, _ := newProvisioner(srv, "darwin", config.SourceRelease)
	_, err := p.EnsureBinary(context.Background(), root)

	require.Error(t, err)
	assert.ErrorIs(t, err, nperrors.ErrUnsupportedPlatform)
	assert.Zero(t, srv.hits.Load())
	assert.NoFileExists(t, filepath.Join(root, "micromamba"))
}

func TestEnsureBinaryDownloadsRelease(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, fakeBinary)
	root := t.TempDir()

	p, out := newProvisioner(srv, platform.Linux, config.SourceRelease)
	got, err := p.EnsureBinary(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "micromamba"), got)
	assert.Equal(t, "/micromamba-linux-64", <-srv.paths)
	assert.Contains(t, out.String(), "micromamba not found, downloading micromamba")
	assert.Contains(t, out.String(), "Downloading micromamba from "+srv.URL+"/micromamba-linux-64")

	content, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, fakeBinary, content)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(got)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}
	assertNoTempFiles(t, root)
}

func TestEnsureBinaryIsIdempotent(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, fakeBinary)
	root := t.TempDir()
	p, _ := newProvisioner(srv, platform.Linux, config.SourceRelease)

	first, err := p.EnsureBinary(context.Background(), root)
	require.NoError(t, err)
	second, err := p.EnsureBinary(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestEnsureBinaryWindowsName(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, fakeBinary)
	root := t.TempDir()

	p, _ := newProvisioner(srv, platform.Windows, config.SourceRelease)
	got, err := p.EnsureBinary(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "micromamba.exe"), got)
	assert.Equal(t, "/micromamba-win-64", <-srv.paths)
	assert.FileExists(t, got)
}

func TestEnsureBinaryHTTPErrorLeavesNothing(t *testing.T) {
	srv := newFakeServer(t, http.StatusNotFound, []byte("not found"))
	root := t.TempDir()

	p, _ := newProvisioner(srv, platform.Linux, config.SourceRelease)
	_, err := p.EnsureBinary(context.Background(), root)

	require.Error(t, err)
	assert.ErrorIs(t, err, nperrors.ErrDownloadFailed)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Equal(t, int32(1), srv.hits.Load())
	assert.NoFileExists(t, filepath.Join(root, "micromamba"))
	assertNoTempFiles(t, root)
}

func TestEnsureBinaryNetworkError(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, fakeBinary)
	url := srv.URL
	srv.Close()

	p := New(Options{BaseURL: url, GOOS: platform.Linux})
	_, err := p.EnsureBinary(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, nperrors.ErrDownloadFailed)
}

func TestEnsureBinaryMissingRoot(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, fakeBinary)
	root := filepath.Join(t.TempDir(), "does", "not", "exist")

	p, _ := newProvisioner(srv, platform.Linux, config.SourceRelease)
	_, err := p.EnsureBinary(context.Background(), root)

	assert.ErrorIs(t, err, nperrors.ErrDownloadFailed)
	assert.NoDirExists(t, root)
}

func TestEnsureBinaryCustomMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not applied on windows")
	}
	srv := newFakeServer(t, http.StatusOK, fakeBinary)
	root := t.TempDir()

	p := New(Options{BaseURL: srv.URL, GOOS: platform.Linux, Client: srv.Client(), Mode: 0o700})
	got, err := p.EnsureBinary(context.Background(), root)
	require.NoError(t, err)

	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestEnsureBinaryDownloadsArchive(t *testing.T) {
	tests := []struct {
		goos     string
		member   string
		wantPath string
		wantName string
	}{
		{platform.Linux, "bin/micromamba", "/linux-64/latest", "micromamba"},
		{platform.Windows, "Library/bin/micromamba.exe", "/win-64/latest", "micromamba.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			archive := makeTarBz2(t, map[string][]byte{
				"info/index.json": []byte(`{"name": "micromamba"}`),
				tt.member:         fakeBinary,
			})
			srv := newFakeServer(t, http.StatusOK, archive)
			root := t.TempDir()

			p, _ := newProvisioner(srv, tt.goos, config.SourceArchive)
			got, err := p.EnsureBinary(context.Background(), root)
			require.NoError(t, err)

			assert.Equal(t, filepath.Join(root, tt.wantName), got)
			assert.Equal(t, tt.wantPath, <-srv.paths)
			content, err := os.ReadFile(got)
			require.NoError(t, err)
			assert.Equal(t, fakeBinary, content)
		})
	}
}

func TestEnsureBinaryArchiveWithoutMember(t *testing.T) {
	archive := makeTarBz2(t, map[string][]byte{"info/index.json": []byte("{}")})
	srv := newFakeServer(t, http.StatusOK, archive)
	root := t.TempDir()

	p, _ := newProvisioner(srv, platform.Linux, config.SourceArchive)
	_, err := p.EnsureBinary(context.Background(), root)

	assert.ErrorIs(t, err, nperrors.ErrDownloadFailed)
	assert.ErrorIs(t, err, ErrMemberNotFound)
	assert.NoFileExists(t, filepath.Join(root, "micromamba"))
	assertNoTempFiles(t, root)
}

func TestEndpoint(t *testing.T) {
	url := func(p *Provisioner, plat platform.Platform) string {
		u, _ := p.endpoint(plat)
		return u
	}

	release := New(Options{})
	assert.Equal(t,
		"https://github.com/mamba-org/micromamba-releases/releases/latest/download/micromamba-linux-64",
		url(release, platform.PlatformLinux))
	assert.Equal(t,
		"https://github.com/mamba-org/micromamba-releases/releases/latest/download/micromamba-win-64",
		url(release, platform.PlatformWindows))

	archive := New(Options{Source: config.SourceArchive})
	assert.Equal(t, "https://micro.mamba.pm/api/micromamba/linux-64/latest", url(archive, platform.PlatformLinux))

	mirror := New(Options{BaseURL: "https://mirror.example.com"})
	assert.Equal(t, "https://mirror.example.com/micromamba-win-64", url(mirror, platform.PlatformWindows))
}

func makeTarBz2(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer

	bw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: 9})
	require.NoError(t, err)
	tw := tar.NewWriter(bw)

	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, bw.Close())
	return buf.Bytes()
}

func assertNoTempFiles(t *testing.T, root string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, ".micromamba-download-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
