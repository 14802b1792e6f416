// Package textbuf holds the line model of a document and the host text stores
// that apply atomic section edits.
package textbuf

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// SplitLines splits text into lines, each keeping its terminator ("\n" or
// "\r\n"). A final line without a terminator is kept; empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// LineCount returns the number of lines SplitLines would produce.
func LineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// DetectEOL returns the document's line-break convention, taken from its
// first terminator. Documents without any line break default to "\n".
func DetectEOL(text string) string {
	i := strings.IndexByte(text, '\n')
	if i > 0 && text[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// HasEOL reports whether s ends with a line terminator.
func HasEOL(s string) bool {
	return strings.HasSuffix(s, "\n")
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// LineText returns line n without its terminator.
func LineText(lines []string, n int) string {
	if n < 0 || n >= len(lines) {
		return ""
	}
	return trimEOL(lines[n])
}

// ContentHashHex returns the SHA-256 hex digest of data.
func ContentHashHex(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
