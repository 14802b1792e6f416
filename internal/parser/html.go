package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// HTMLSource reports h1..h6 elements. It tokenizes rather than builds a DOM
// so every heading keeps the source lines it was written on.
type HTMLSource struct{}

// NewHTMLSource creates an HTML symbol source.
func NewHTMLSource() *HTMLSource {
	return &HTMLSource{}
}

// Symbols returns the document's heading elements in order.
func (p *HTMLSource) Symbols(ctx context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	z := html.NewTokenizer(strings.NewReader(snap.Text))

	var (
		symbols []doctree.Symbol
		line    int
		open    *doctree.Symbol // Heading being collected
		label   strings.Builder
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenize html: %w", err)
			}
			break
		}
		start := line
		line += bytes.Count(z.Raw(), []byte("\n"))

		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			level := headingLevel(atom.Lookup(name))
			if level == 0 || open != nil {
				continue
			}
			open = &doctree.Symbol{
				Kind:   doctree.KindHeading,
				Level:  level,
				Header: &doctree.Range{Start: start, End: start},
			}
			label.Reset()
		case html.TextToken:
			if open != nil {
				label.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if open == nil || headingLevel(atom.Lookup(name)) != open.Level {
				continue
			}
			open.Header.End = start
			open.Name = strings.Join(strings.Fields(label.String()), " ")
			symbols = append(symbols, *open)
			open = nil
		}
	}
	if open != nil {
		// Unclosed heading at end of input.
		open.Name = strings.Join(strings.Fields(label.String()), " ")
		symbols = append(symbols, *open)
	}
	return symbols, nil
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

// HTMLTitle returns the text of the document's <title> element, if any.
func HTMLTitle(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}
	return findTitle(doc)
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
