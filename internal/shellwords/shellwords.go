// SPDX-License-Identifier: Apache-2.0
// Package shellwords splits and joins command lines using POSIX shell
// quoting rules, the way extra micromamba arguments are written in config.
package shellwords

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrUnclosedQuote is returned when a quoted word is not closed.
	ErrUnclosedQuote = errors.New("unclosed quote")

	// ErrTrailingEscape is returned when input ends with a backslash.
	ErrTrailingEscape = errors.New("trailing escape character")
)

type state int

const (
	stateSpace state = iota
	stateWord
	stateSingle
	stateDouble
)

// Split breaks s into words.
//
//	Split(`create -c conda-forge`)         => ["create", "-c", "conda-forge"]
//	Split(`--prefix "/opt/my envs"`)       => ["--prefix", "/opt/my envs"]
//	Split(`--spec 'python>=3.11' ""`)      => ["--spec", "python>=3.11", ""]
func Split(s string) ([]string, error) {
	words := []string{}
	var cur strings.Builder
	st := stateSpace

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		switch st {
		case stateSingle:
			if ch == '\'' {
				st = stateWord
			} else {
				cur.WriteRune(ch)
			}
			continue
		case stateDouble:
			switch ch {
			case '"':
				st = stateWord
			case '\\':
				if i+1 >= len(runes) {
					return nil, ErrTrailingEscape
				}
				i++
				if !strings.ContainsRune("\"\\$`", runes[i]) {
					cur.WriteRune('\\')
				}
				cur.WriteRune(runes[i])
			default:
				cur.WriteRune(ch)
			}
			continue
		}

		switch {
		case unicode.IsSpace(ch):
			if st == stateWord {
				words = append(words, cur.String())
				cur.Reset()
				st = stateSpace
			}
		case ch == '\\':
			if i+1 >= len(runes) {
				return nil, ErrTrailingEscape
			}
			i++
			cur.WriteRune(runes[i])
			st = stateWord
		case ch == '\'':
			st = stateSingle
		case ch == '"':
			st = stateDouble
		default:
			cur.WriteRune(ch)
			st = stateWord
		}
	}

	switch st {
	case stateSingle:
		return nil, fmt.Errorf("%w: single", ErrUnclosedQuote)
	case stateDouble:
		return nil, fmt.Errorf("%w: double", ErrUnclosedQuote)
	case stateWord:
		words = append(words, cur.String())
	}
	return words, nil
}

// Join quotes each word as needed and joins them with spaces, so that
// Split(Join(words)) returns words.
func Join(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Quote(w)
	}
	return strings.Join(quoted, " ")
}

// Quote returns w quoted for a POSIX shell if it needs quoting.
func Quote(w string) string {
	if w == "" {
		return "''"
	}
	if !strings.ContainsFunc(w, needsQuote) {
		return w
	}
	if !strings.Contains(w, "'") {
		return "'" + w + "'"
	}

	var b strings.Builder
	b.WriteByte('"')
	for _, ch := range w {
		if strings.ContainsRune("\"\\$`", ch) {
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	b.WriteByte('"')
	return b.String()
}

func needsQuote(ch rune) bool {
	return unicode.IsSpace(ch) || strings.ContainsRune("'\"\\$`", ch)
}
