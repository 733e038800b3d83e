// Package script prepares presentation scripts for narration and slide work.
package script

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ErrEmptyText is returned when there is nothing left to narrate.
var ErrEmptyText = errors.New("script text is empty")

var (
	stageDirection = regexp.MustCompile(`\(\(.*?\)\)`)
	illustration   = regexp.MustCompile(`\(\( Illustration: (.*?) \)\)`)
)

// FilterSpoken removes (( ... )) stage directions and trims the result.
func FilterSpoken(text string) string {
	return strings.TrimSpace(stageDirection.ReplaceAllString(text, ""))
}

// SplitChunks breaks text into pieces of at most maxBytes bytes. Each cut is
// made after the last '.' that fits; when no period fits the cut is forced at
// the byte limit, backed off to a rune boundary. Whitespace at the start of
// each following chunk is dropped.
func SplitChunks(text string, maxBytes int) ([]string, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", maxBytes)
	}
	if text == "" {
		return nil, ErrEmptyText
	}

	var chunks []string
	for len(text) > maxBytes {
		cut := strings.LastIndexByte(text[:maxBytes], '.') + 1
		if cut == 0 {
			cut = maxBytes
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				return nil, fmt.Errorf("chunk size %d is smaller than a single character", maxBytes)
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], " \t\r\n\v\f")
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks, nil
}

// ExtractIllustrations returns the (( Illustration: X )) cues in order and the
// script with those markers removed.
func ExtractIllustrations(text string) ([]string, string) {
	matches := illustration.FindAllStringSubmatch(text, -1)
	cues := make([]string, 0, len(matches))
	for _, m := range matches {
		cues = append(cues, m[1])
	}
	return cues, illustration.ReplaceAllString(text, "")
}
