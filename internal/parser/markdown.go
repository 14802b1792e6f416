package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// MarkdownSource reports ATX and setext headings using goldmark, so headings
// inside fenced code or HTML blocks are never mistaken for structure.
type MarkdownSource struct {
	md goldmark.Markdown
}

// NewMarkdownSource creates a markdown symbol source.
func NewMarkdownSource() *MarkdownSource {
	return &MarkdownSource{md: goldmark.New()}
}

// Symbols returns the document's headings in order.
func (p *MarkdownSource) Symbols(ctx context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := []byte(snap.Text)
	idx := newLineIndex(src)
	doc := p.md.Parser().Parse(text.NewReader(src))

	var symbols []doctree.Symbol
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		symbols = append(symbols, headingSymbol(h, src, idx))
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

// headingSymbol positions a heading from its text segments. An empty ATX
// heading has no segments and is reported without a header range.
func headingSymbol(h *ast.Heading, src []byte, idx *lineIndex) doctree.Symbol {
	sym := doctree.Symbol{Kind: doctree.KindHeading, Level: h.Level}
	lines := h.Lines()
	if lines.Len() == 0 {
		return sym
	}

	var parts []string
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimSpace(string(seg.Value(src))))
	}
	sym.Name = strings.Join(parts, " ")

	first := idx.line(lines.At(0).Start)
	last := idx.line(lines.At(lines.Len() - 1).Start)
	if !isATX(idx.text(src, first)) {
		// Setext: the underline is part of the header.
		last++
	}
	sym.Header = &doctree.Range{Start: first, End: last}
	return sym
}

func isATX(line []byte) bool {
	trimmed := bytes.TrimLeft(line, " ")
	return len(line)-len(trimmed) <= 3 && bytes.HasPrefix(trimmed, []byte("#"))
}
