package doctree

import "sort"

// Locate returns the innermost node whose content range contains line.
func Locate(t *DocTree, line int) (*DocNode, bool) {
	if t == nil {
		return nil, false
	}
	var found *DocNode
	nodes := t.Children
	for {
		n := containing(nodes, line)
		if n == nil {
			break
		}
		found = n
		nodes = n.Children
	}
	return found, found != nil
}

// containing finds the node among ordered, disjoint siblings that contains line.
func containing(nodes []*DocNode, line int) *DocNode {
	// First sibling starting after line; the candidate is the one before it.
	i := sort.Search(len(nodes), func(i int) bool {
		return nodes[i].Content.Start > line
	})
	if i == 0 {
		return nil
	}
	if n := nodes[i-1]; n.Content.Contains(line) {
		return n
	}
	return nil
}

// FindByHeader returns the node whose header starts on line.
func FindByHeader(t *DocTree, line int) (*DocNode, bool) {
	n, ok := Locate(t, line)
	if !ok || n.Header.Start != line {
		return nil, false
	}
	return n, true
}

// HeaderAtOrAfter returns the first node, in document order, whose header
// starts on or after line.
func HeaderAtOrAfter(t *DocTree, line int) (*DocNode, bool) {
	var found *DocNode
	Walk(t, func(n *DocNode, _ int) bool {
		if found != nil {
			return false
		}
		if n.Header.Start >= line {
			found = n
			return false
		}
		// Only descend where a later header can still be found.
		return n.Content.End >= line
	})
	return found, found != nil
}

// EndInsertionLine is the line immediately after the last root's content,
// the position that appends a section at the end of the document.
func EndInsertionLine(t *DocTree) int {
	if t == nil {
		return 0
	}
	if len(t.Children) == 0 {
		return t.LineCount
	}
	return t.Children[len(t.Children)-1].Content.End + 1
}
