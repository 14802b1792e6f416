package parser

import (
	"context"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// MarkerScanner is the lexical fallback: a line that starts with a run of
// Marker followed by whitespace is a heading whose level is the run length.
type MarkerScanner struct {
	Marker    byte
	MaxIndent int  // Leading spaces allowed before the marker run
	MaxLevel  int  // Longest run accepted; 0 for no limit
	Fences    bool // Ignore lines inside ``` or ~~~ fences
	TrimClose bool // Drop a trailing run of markers ("## Title ##")
}

// MarkdownMarkers scans ATX headings.
func MarkdownMarkers() *MarkerScanner {
	return &MarkerScanner{Marker: '#', MaxIndent: 3, MaxLevel: 6, Fences: true, TrimClose: true}
}

// OrgMarkers scans org-mode outline stars.
func OrgMarkers() *MarkerScanner {
	return &MarkerScanner{Marker: '*'}
}

// AsciiDocMarkers scans AsciiDoc section titles.
func AsciiDocMarkers() *MarkerScanner {
	return &MarkerScanner{Marker: '=', MaxLevel: 6, Fences: true}
}

// Scan returns one symbol per marker line.
func (m *MarkerScanner) Scan(text string) []doctree.Symbol {
	var symbols []doctree.Symbol
	var fence string
	for i, raw := range textbuf.SplitLines(text) {
		line := strings.TrimRight(raw, "\r\n")
		if m.Fences {
			if f := fenceMarker(line); f != "" {
				switch {
				case fence == "":
					fence = f
				case strings.HasPrefix(f, fence):
					fence = ""
				}
				continue
			}
			if fence != "" {
				continue
			}
		}
		if sym, ok := m.scanLine(line); ok {
			sym.Header = &doctree.Range{Start: i, End: i}
			symbols = append(symbols, sym)
		}
	}
	return symbols
}

// Symbols lets the scanner act as a primary source for marker-only formats.
func (m *MarkerScanner) Symbols(ctx context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Scan(snap.Text), nil
}

func (m *MarkerScanner) scanLine(line string) (doctree.Symbol, bool) {
	body := strings.TrimLeft(line, " ")
	if len(line)-len(body) > m.MaxIndent {
		return doctree.Symbol{}, false
	}
	level := 0
	for level < len(body) && body[level] == m.Marker {
		level++
	}
	if level == 0 || (m.MaxLevel > 0 && level > m.MaxLevel) {
		return doctree.Symbol{}, false
	}
	rest := body[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return doctree.Symbol{}, false
	}
	name := strings.TrimSpace(rest)
	if m.TrimClose {
		name = trimClosingRun(name, m.Marker)
	}
	return doctree.Symbol{Name: name, Kind: doctree.KindHeading, Level: level}, true
}

// trimClosingRun removes a closing marker run that is separated from the
// title by whitespace.
func trimClosingRun(name string, marker byte) string {
	stripped := strings.TrimRight(name, string(marker))
	if stripped == "" {
		return ""
	}
	if stripped == name {
		return name
	}
	if last := stripped[len(stripped)-1]; last == ' ' || last == '\t' {
		return strings.TrimSpace(stripped)
	}
	return name
}

// fenceMarker returns the fence run opening or closing a code block.
func fenceMarker(line string) string {
	body := strings.TrimLeft(line, " ")
	if len(line)-len(body) > 3 {
		return ""
	}
	for _, c := range []byte{'`', '~'} {
		n := 0
		for n < len(body) && body[n] == c {
			n++
		}
		if n >= 3 {
			return body[:n]
		}
	}
	return ""
}
