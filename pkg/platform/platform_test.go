package platform

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nperrors "github.com/dbkinghorn/nodepyenv/pkg/errors"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		goos string
		want Platform
	}{
		{"linux", PlatformLinux},
		{"windows", PlatformWindows},
		{"darwin", Unsupported},
		{"freebsd", Unsupported},
		{"", Unsupported},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.goos))
		})
	}
}

func TestRequire(t *testing.T) {
	p, err := Require("linux")
	require.NoError(t, err)
	assert.Equal(t, PlatformLinux, p)

	_, err = Require("darwin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, nperrors.ErrUnsupportedPlatform))
	assert.Contains(t, err.Error(), "darwin")
}

func TestSegment(t *testing.T) {
	assert.Equal(t, "linux-64", PlatformLinux.Segment())
	assert.Equal(t, "win-64", PlatformWindows.Segment())
	assert.Empty(t, Unsupported.Segment())
}

func TestBinaryName(t *testing.T) {
	assert.Equal(t, "micromamba", PlatformLinux.BinaryName("micromamba"))
	assert.Equal(t, "micromamba.exe", PlatformWindows.BinaryName("micromamba"))
}

func TestInterpreterPath(t *testing.T) {
	envDir := filepath.Join("root", "envs", "demo")

	assert.Equal(t, filepath.Join("root", "envs", "demo", "bin", "python"), PlatformLinux.InterpreterPath(envDir))
	assert.Equal(t, filepath.Join("root", "envs", "demo", "python.exe"), PlatformWindows.InterpreterPath(envDir))
}

func TestString(t *testing.T) {
	assert.Equal(t, "linux", PlatformLinux.String())
	assert.Equal(t, "windows", PlatformWindows.String())
	assert.Equal(t, "unsupported", Unsupported.String())
}
