package parser

import "sort"

// lineIndex maps byte offsets in a source to zero-based line numbers.
type lineIndex struct {
	starts []int // Byte offset where each line begins
	size   int
}

func newLineIndex(src []byte) *lineIndex {
	idx := &lineIndex{starts: []int{0}, size: len(src)}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			idx.starts = append(idx.starts, i+1)
		}
	}
	return idx
}

// line returns the line containing byte offset off.
func (idx *lineIndex) line(off int) int {
	return sort.SearchInts(idx.starts, off+1) - 1
}

// text returns line n of src without its terminator.
func (idx *lineIndex) text(src []byte, n int) []byte {
	if n < 0 || n >= len(idx.starts) {
		return nil
	}
	end := idx.size
	if n+1 < len(idx.starts) {
		end = idx.starts[n+1]
	}
	b := src[idx.starts[n]:end]
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
