// Package parser extracts structural symbols from document text. Each source
// reports leveled, line-positioned symbols that the outline builder nests.
package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Document type tags.
const (
	TypeMarkdown   = "markdown"
	TypeHTML       = "html"
	TypeOrg        = "org"
	TypeAsciiDoc   = "asciidoc"
	TypePlainText  = "plaintext"
	TypeGo         = "go"
	TypePython     = "python"
	TypeRust       = "rust"
	TypeTypeScript = "typescript"
)

var extMu sync.RWMutex

// extensionTypes maps file extensions to document types.
var extensionTypes = map[string]string{
	".md":       TypeMarkdown,
	".markdown": TypeMarkdown,
	".html":     TypeHTML,
	".htm":      TypeHTML,
	".org":      TypeOrg,
	".adoc":     TypeAsciiDoc,
	".asciidoc": TypeAsciiDoc,
	".txt":      TypePlainText,
	".go":       TypeGo,
	".py":       TypePython,
	".rs":       TypeRust,
	".ts":       TypeTypeScript,
}

// UnsupportedTypeError reports a file whose type cannot be outlined.
type UnsupportedTypeError struct {
	Ext string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file extension: %s", e.Ext)
}

// DetectType returns the document type for a filename.
func DetectType(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	extMu.RLock()
	defer extMu.RUnlock()
	if t, ok := extensionTypes[ext]; ok {
		return t, nil
	}
	return "", &UnsupportedTypeError{Ext: ext}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	_, err := DetectType(filename)
	return err == nil
}

// RegisterExtension maps an extra extension to a document type, as for
// languages served by a configured language server.
func RegisterExtension(ext, docType string) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	extMu.Lock()
	extensionTypes[ext] = docType
	extMu.Unlock()
}

// Extensions lists the known extensions in sorted order.
func Extensions() []string {
	extMu.RLock()
	defer extMu.RUnlock()
	out := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// TitleFor derives a document title from its filename.
func TitleFor(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
