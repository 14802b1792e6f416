package textbuf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
)

var (
	// ErrVersionMismatch means the document changed since the edit was computed.
	ErrVersionMismatch = errors.New("document version changed")
	// ErrEditRange means an edit addressed lines outside the document.
	ErrEditRange = errors.New("edit out of range")
)

// Snapshot is an immutable view of a document's text.
type Snapshot struct {
	URI     string `json:"uri"`
	Type    string `json:"type"`
	Text    string `json:"text"`
	Version string `json:"version"`
}

// LineCount returns the number of lines in the snapshot.
func (s Snapshot) LineCount() int {
	return LineCount(s.Text)
}

// Edit deletes a line range and inserts text before line InsertAt, where
// InsertAt is counted after the deletion has been applied.
type Edit struct {
	Delete   doctree.Range
	InsertAt int
	Text     string
}

// ApplyEdit returns text with e applied. Inserted text always lands on a line
// boundary, and whether the document ends with a line break is preserved.
func ApplyEdit(text string, e Edit) (string, error) {
	lines := SplitLines(text)
	d := e.Delete
	if d.Start < 0 || d.Start > len(lines) || d.End >= len(lines) || d.End < d.Start-1 {
		return "", fmt.Errorf("%w: delete [%d,%d] in %d lines", ErrEditRange, d.Start, d.End, len(lines))
	}

	rest := make([]string, 0, len(lines))
	rest = append(rest, lines[:d.Start]...)
	rest = append(rest, lines[d.End+1:]...)
	if e.InsertAt < 0 || e.InsertAt > len(rest) {
		return "", fmt.Errorf("%w: insert at %d in %d lines", ErrEditRange, e.InsertAt, len(rest))
	}

	eol := DetectEOL(text)
	endsWithEOL := HasEOL(text)

	ins := e.Text
	if ins != "" && !HasEOL(ins) {
		ins += eol
	}
	if e.InsertAt > 0 && ins != "" && !HasEOL(rest[e.InsertAt-1]) {
		rest[e.InsertAt-1] += eol
	}

	var sb strings.Builder
	sb.Grow(len(text) + len(eol))
	for _, l := range rest[:e.InsertAt] {
		sb.WriteString(l)
	}
	sb.WriteString(ins)
	for _, l := range rest[e.InsertAt:] {
		sb.WriteString(l)
	}

	out := sb.String()
	if !endsWithEOL && HasEOL(out) {
		out = trimEOL(out)
	}
	return out, nil
}
