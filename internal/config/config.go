// SPDX-License-Identifier: Apache-2.0
// Package config loads nodepyenv settings from defaults, an optional TOML
// file and NODEPYENV_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-hclog"

	"github.com/dbkinghorn/nodepyenv/internal/shellwords"
	nperrors "github.com/dbkinghorn/nodepyenv/pkg/errors"
	"github.com/dbkinghorn/nodepyenv/pkg/logging"
)

// Source selects where micromamba is downloaded from.
type Source string

const (
	// SourceRelease downloads the raw binary from GitHub releases.
	SourceRelease Source = "release"
	// SourceArchive downloads the conda package (tar.bz2) from micro.mamba.pm.
	SourceArchive Source = "archive"
)

// Environment variable names.
const (
	EnvConfig     = "NODEPYENV_CONFIG"
	EnvLogLevel   = "NODEPYENV_LOG_LEVEL"
	EnvJSONLog    = "NODEPYENV_JSON_LOG"
	EnvLogPath    = "NODEPYENV_LOG_PATH"
	EnvSource     = "NODEPYENV_SOURCE"
	EnvBaseURL    = "NODEPYENV_BASE_URL"
	EnvBinaryMode = "NODEPYENV_BINARY_MODE"
	EnvCreateArgs = "NODEPYENV_CREATE_ARGS"
)

// DefaultBinaryMode is the permission given to a downloaded micromamba.
const DefaultBinaryMode os.FileMode = 0o755

// Config holds the resolved settings.
type Config struct {
	LogLevel   string
	JSONLog    bool
	LogPath    string
	Source     Source
	BaseURL    string
	BinaryMode os.FileMode
	CreateArgs []string

	// File is the config file that was loaded, empty if none.
	File string
}

type fileConfig struct {
	LogLevel   string `toml:"log_level"`
	JSONLog    bool   `toml:"json_log"`
	LogPath    string `toml:"log_path"`
	Source     string `toml:"source"`
	BaseURL    string `toml:"base_url"`
	BinaryMode string `toml:"binary_mode"`
	CreateArgs string `toml:"create_args"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:   "info",
		Source:     SourceRelease,
		BinaryMode: DefaultBinaryMode,
		CreateArgs: []string{},
	}
}

// Load resolves the configuration. The file named by NODEPYENV_CONFIG is
// required to exist; defaultPath is used only if it exists.
func Load(defaultPath string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	path := strings.TrimSpace(getenv(EnvConfig))
	required := path != ""
	if !required {
		path = defaultPath
	}

	if path != "" {
		err := cfg.applyFile(path)
		switch {
		case err == nil:
			cfg.File = path
		case !required && errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		return fmt.Errorf("%w: load %s: %v", nperrors.ErrInvalidConfig, path, err)
	}

	if meta.IsDefined("log_level") {
		if err := c.setLogLevel(raw.LogLevel); err != nil {
			return err
		}
	}
	if meta.IsDefined("json_log") {
		c.JSONLog = raw.JSONLog
	}
	if meta.IsDefined("log_path") {
		c.LogPath = strings.TrimSpace(raw.LogPath)
	}
	if meta.IsDefined("source") {
		if err := c.setSource(raw.Source); err != nil {
			return err
		}
	}
	if meta.IsDefined("base_url") {
		c.BaseURL = strings.TrimRight(strings.TrimSpace(raw.BaseURL), "/")
	}
	if meta.IsDefined("binary_mode") {
		if err := c.setBinaryMode(raw.BinaryMode); err != nil {
			return err
		}
	}
	if meta.IsDefined("create_args") {
		if err := c.setCreateArgs(raw.CreateArgs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvLogLevel); strings.TrimSpace(v) != "" {
		if err := c.setLogLevel(v); err != nil {
			return err
		}
	}
	if v := strings.TrimSpace(getenv(EnvJSONLog)); v != "" {
		c.JSONLog = isTrue(v)
	}
	if v := strings.TrimSpace(getenv(EnvLogPath)); v != "" {
		c.LogPath = v
	}
	if v := getenv(EnvSource); v != "" {
		if err := c.setSource(v); err != nil {
			return err
		}
	}
	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		c.BaseURL = strings.TrimRight(v, "/")
	}
	if v := getenv(EnvBinaryMode); v != "" {
		if err := c.setBinaryMode(v); err != nil {
			return err
		}
	}
	if v := getenv(EnvCreateArgs); v != "" {
		if err := c.setCreateArgs(v); err != nil {
			return err
		}
	}
	return nil
}

// setLogLevel accepts an hclog level name, optionally prefixed with "json:".
func (c *Config) setLogLevel(v string) error {
	v = strings.TrimSpace(v)
	level, _ := logging.ParseLevel(v)
	if hclog.LevelFromString(level) == hclog.NoLevel {
		return fmt.Errorf("%w: unknown log_level %q", nperrors.ErrInvalidConfig, v)
	}
	c.LogLevel = v
	return nil
}

func (c *Config) setSource(v string) error {
	switch s := Source(strings.ToLower(strings.TrimSpace(v))); s {
	case SourceRelease, SourceArchive:
		c.Source = s
		return nil
	default:
		return fmt.Errorf("%w: unknown source %q (want %q or %q)", nperrors.ErrInvalidConfig, v, SourceRelease, SourceArchive)
	}
}

func (c *Config) setBinaryMode(v string) error {
	mode, err := ParseMode(v)
	if err != nil {
		return fmt.Errorf("%w: binary_mode: %v", nperrors.ErrInvalidConfig, err)
	}
	c.BinaryMode = mode
	return nil
}

func (c *Config) setCreateArgs(v string) error {
	args, err := shellwords.Split(v)
	if err != nil {
		return fmt.Errorf("%w: create_args: %v", nperrors.ErrInvalidConfig, err)
	}
	c.CreateArgs = args
	return nil
}

// ParseMode parses an octal permission string such as "755", "0755" or
// "0o755". Modes without an owner execute bit are rejected.
func ParseMode(s string) (os.FileMode, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0o")
	if len(s) > 1 {
		s = strings.TrimPrefix(s, "0")
	}

	val, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid permission string %q: %w", s, err)
	}
	mode := os.FileMode(val)
	if mode&^os.ModePerm != 0 {
		return 0, fmt.Errorf("permission %q out of range", s)
	}
	if mode&0o100 == 0 {
		return 0, fmt.Errorf("permission %s lacks owner execute bit", FormatMode(mode))
	}
	return mode, nil
}

// FormatMode formats a permission value as an octal string.
func FormatMode(mode os.FileMode) string {
	return fmt.Sprintf("0%o", mode.Perm())
}

// isTrue checks if an environment value is set to a true value
func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "on", "yes":
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
