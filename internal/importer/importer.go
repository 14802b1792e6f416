// Package importer converts binary documents into editable markdown so they
// can be outlined and reorganized like any text document.
package importer

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Importer converts one binary format to markdown.
type Importer interface {
	Import(r io.Reader, filename string) (string, error)
}

// DefaultMaxBytes bounds how much of an upload is read into memory when no
// limit is configured.
const DefaultMaxBytes = 50 << 20

// ForFile returns the importer for a filename, or false if the file is
// already text. Inputs over maxBytes are refused; zero means DefaultMaxBytes.
func ForFile(filename string, maxBytes int64) (Importer, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		return &DOCXImporter{MaxBytes: maxBytes}, true
	case ".pdf":
		return &PDFImporter{MaxBytes: maxBytes}, true
	}
	return nil, false
}

// IsImportable reports whether filename has a binary format this package converts.
func IsImportable(filename string) bool {
	_, ok := ForFile(filename, 0)
	return ok
}

// MarkdownName is the name an imported document is saved under.
func MarkdownName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".md"
}

// readAll reads r into memory, refusing inputs over limit bytes.
func readAll(r io.Reader, limit int64) (*bytes.Reader, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("input exceeds %d bytes", limit)
	}
	return bytes.NewReader(data), nil
}

// writeHeading appends an ATX heading line.
func writeHeading(sb *strings.Builder, level int, title string) {
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Repeat("#", level))
	sb.WriteString(" ")
	sb.WriteString(title)
	sb.WriteString("\n")
}

// writeParagraph appends a blank-line separated paragraph.
func writeParagraph(sb *strings.Builder, text string) {
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(text)
	sb.WriteString("\n")
}
