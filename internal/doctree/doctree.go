package doctree

// Kind classifies a structural symbol.
type Kind string

const (
	KindHeading   Kind = "heading"
	KindSection   Kind = "section"
	KindModule    Kind = "module"
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindInterface Kind = "interface"
	KindEnum      Kind = "enum"
	KindType      Kind = "type"
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindField     Kind = "field"
	KindConstant  Kind = "constant"
	KindVariable  Kind = "variable"
)

// Range is an inclusive, zero-based line span.
type Range struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Line returns a single-line range.
func Line(n int) Range {
	return Range{Start: n, End: n}
}

// Contains reports whether line falls inside r.
func (r Range) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// Len is the number of lines covered by r.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// StrictlyContains reports whether o lies inside r and is not equal to it.
func (r Range) StrictlyContains(o Range) bool {
	return o.Start >= r.Start && o.End <= r.End && (o.Start > r.Start || o.End < r.End)
}

// Symbol is one structural declaration reported by a symbol source.
// A nil Header marks a symbol whose source could not locate it.
type Symbol struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Level  int    `json:"level"`
	Header *Range `json:"header,omitempty"`
}

// NestedSymbol is a symbol from a source that already reports a tree.
type NestedSymbol struct {
	Symbol
	Children []NestedSymbol
}

// DocTree is the outline forest for one document snapshot.
type DocTree struct {
	Title     string     `json:"title" yaml:"title"`
	URI       string     `json:"uri,omitempty" yaml:"uri,omitempty"`
	Version   string     `json:"version,omitempty" yaml:"version,omitempty"`
	LineCount int        `json:"line_count" yaml:"line_count"`
	Children  []*DocNode `json:"children" yaml:"children"` // Root sections
}

// DocNode is a section in the outline: its header line plus everything up to
// the next sibling-or-shallower node.
type DocNode struct {
	Label    string     `json:"label" yaml:"label"`
	Kind     Kind       `json:"kind" yaml:"kind"`
	Level    int        `json:"level" yaml:"level"`
	Header   Range      `json:"header" yaml:"header"`
	Content  Range      `json:"content" yaml:"content"`
	Children []*DocNode `json:"children,omitempty" yaml:"children,omitempty"`

	parent *DocNode
}

// Parent returns the enclosing node, or nil for a root.
func (n *DocNode) Parent() *DocNode {
	return n.parent
}

// Empty reports whether the forest has no sections.
func (t *DocTree) Empty() bool {
	return t == nil || len(t.Children) == 0
}

// Walk visits every node in document order. Returning false from fn skips
// the node's children.
func Walk(t *DocTree, fn func(n *DocNode, depth int) bool) {
	if t == nil {
		return
	}
	var walk func(nodes []*DocNode, depth int)
	walk = func(nodes []*DocNode, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(t.Children, 0)
}

// Breadcrumb returns the labels from the root down to n.
func Breadcrumb(n *DocNode) []string {
	var bc []string
	for cur := n; cur != nil; cur = cur.parent {
		bc = append(bc, cur.Label)
	}
	for i, j := 0, len(bc)-1; i < j; i, j = i+1, j-1 {
		bc[i], bc[j] = bc[j], bc[i]
	}
	return bc
}

// Count returns the number of nodes in the forest.
func Count(t *DocTree) int {
	n := 0
	Walk(t, func(*DocNode, int) bool {
		n++
		return true
	})
	return n
}
