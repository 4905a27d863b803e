// SPDX-License-Identifier: Apache-2.0
// Package descriptor reads single top-level scalar fields out of an
// environment descriptor without parsing it as YAML.
//
// Only lines of the form "key: value" at the start of a line are
// considered. Nesting, lists and quoting are not interpreted, which is
// enough to learn an environment's name and keeps YAML libraries out of
// the binary.
package descriptor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// NameKey is the field that names an environment.
const NameKey = "name"

// ExtractValue returns the value of the first line in the file at path
// that matches "^key:\s*(.+)$", trimmed of surrounding whitespace.
// found is false when no line matches; err is only set on I/O failure.
func ExtractValue(path, key string) (value string, found bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	value, found, err = Scan(f, key)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	return value, found, nil
}

// Scan is ExtractValue over an arbitrary reader. Lines may be of any length.
func Scan(r io.Reader, key string) (string, bool, error) {
	re := keyPattern(key)

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", false, err
		}
		line = strings.TrimRight(line, "\r\n")
		if m := re.FindStringSubmatch(line); m != nil {
			// A whitespace-only value is not a value.
			if v := strings.TrimSpace(m[1]); v != "" {
				return v, true, nil
			}
		}
		if err == io.EOF {
			return "", false, nil
		}
	}
}

// Name extracts the environment name from the descriptor at path.
func Name(path string) (string, bool, error) {
	return ExtractValue(path, NameKey)
}

func keyPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(key) + `:\s*(.+)$`)
}
