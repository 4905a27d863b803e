// SPDX-License-Identifier: Apache-2.0
package logging

import (
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"
)

// DefaultLevel is used when neither config nor environment sets a level.
const DefaultLevel = "info"

// Options configures NewLogger.
type Options struct {
	Name string
	// Level is an hclog level name. A "json:" prefix ("json:debug") also
	// selects JSON output.
	Level  string
	JSON   bool
	Output io.Writer
	// Getenv looks up NO_COLOR; nil means os.Getenv.
	Getenv func(string) string
}

// NewLogger creates a new hclog logger with standard settings
func NewLogger(opts Options) hclog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	level, jsonFormat := ParseLevel(opts.Level)
	jsonFormat = jsonFormat || opts.JSON

	color := hclog.ColorOff
	if !jsonFormat && ColorEnabled(output, opts.Getenv) {
		color = hclog.ForceColor
	}

	// Add prefix for non-JSON output
	if !jsonFormat {
		output = NewPrefixWriter(Prefix(), output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		Color:      color,
		TimeFormat: "2006-01-02T15:04:05Z", // UTC ISO format
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// ParseLevel splits a level string of the form "json:debug" into its level
// and whether JSON output was requested. A bare "json" means JSON at info.
func ParseLevel(s string) (level string, jsonFormat bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "json") {
		jsonFormat = true
		if _, after, ok := strings.Cut(s, ":"); ok && after != "" {
			s = after
		} else {
			s = DefaultLevel
		}
	}
	if s == "" {
		s = DefaultLevel
	}
	return s, jsonFormat
}

// Prefix is the marker written before every text log line
// (ASCII on Windows, emoji elsewhere).
func Prefix() string {
	if runtime.GOOS == "windows" {
		return "[nodepyenv] "
	}
	return "🐍 "
}

// ColorEnabled reports whether w is a terminal and NO_COLOR is unset or
// empty. getenv defaults to os.Getenv.
func ColorEnabled(w io.Writer, getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}
	if getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
