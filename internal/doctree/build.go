package doctree

import (
	"fmt"
	"sort"
)

// Skipped records a symbol the builder dropped.
type Skipped struct {
	Index  int    // Position in the input stream
	Symbol Symbol
	Reason string
}

func (s Skipped) String() string {
	return fmt.Sprintf("symbol %d (%q): %s", s.Index, s.Symbol.Name, s.Reason)
}

// Build turns an ordered stream of leveled symbols into an outline forest for
// a document of lineCount lines. Malformed symbols are skipped and reported;
// the build always completes.
func Build(symbols []Symbol, lineCount int) (*DocTree, []Skipped) {
	tree := &DocTree{LineCount: lineCount}
	lastLine := lineCount - 1

	var skipped []Skipped
	var stack []*DocNode
	prevHeaderEnd := -1

	for i, s := range symbols {
		if reason := malformed(s, lineCount, prevHeaderEnd); reason != "" {
			skipped = append(skipped, Skipped{Index: i, Symbol: s, Reason: reason})
			continue
		}
		start := s.Header.Start

		// Close everything at the same depth or deeper.
		for len(stack) > 0 && stack[len(stack)-1].Level >= s.Level {
			stack[len(stack)-1].Content.End = start - 1
			stack = stack[:len(stack)-1]
		}

		header := *s.Header
		if header.End > lastLine {
			header.End = lastLine
		}
		node := &DocNode{
			Label:   s.Name,
			Kind:    s.Kind,
			Level:   s.Level,
			Header:  header,
			Content: Range{Start: start, End: -1},
		}
		if len(stack) == 0 {
			tree.Children = append(tree.Children, node)
		} else {
			parent := stack[len(stack)-1]
			node.parent = parent
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, node)
		prevHeaderEnd = header.End
	}

	for _, open := range stack {
		open.Content.End = lastLine
	}

	return tree, skipped
}

func malformed(s Symbol, lineCount, prevHeaderEnd int) string {
	switch {
	case s.Level <= 0:
		return fmt.Sprintf("non-positive level %d", s.Level)
	case s.Header == nil:
		return "missing header range"
	case s.Header.Start < 0 || s.Header.End < s.Header.Start:
		return fmt.Sprintf("invalid header range [%d,%d]", s.Header.Start, s.Header.End)
	case s.Header.Start >= lineCount:
		return fmt.Sprintf("header line %d beyond document end (%d lines)", s.Header.Start, lineCount)
	case s.Header.Start <= prevHeaderEnd:
		return fmt.Sprintf("header line %d not after preceding header ending at %d", s.Header.Start, prevHeaderEnd)
	}
	return ""
}

// Flatten converts a natively nested symbol tree into the flat, leveled
// stream Build consumes: siblings ordered by header line, pre-order, with
// level equal to depth. Symbols without a header sort last among their
// siblings and keep their place in the stream so Build can report them.
func Flatten(nested []NestedSymbol) []Symbol {
	var out []Symbol
	var walk func(nodes []NestedSymbol, depth int)
	walk = func(nodes []NestedSymbol, depth int) {
		ordered := make([]NestedSymbol, len(nodes))
		copy(ordered, nodes)
		sort.SliceStable(ordered, func(i, j int) bool {
			return headerStart(ordered[i].Header) < headerStart(ordered[j].Header)
		})
		for _, n := range ordered {
			s := n.Symbol
			s.Level = depth
			out = append(out, s)
			walk(n.Children, depth+1)
		}
	}
	walk(nested, 1)
	return out
}

func headerStart(r *Range) int {
	if r == nil {
		return int(^uint(0) >> 1)
	}
	return r.Start
}
