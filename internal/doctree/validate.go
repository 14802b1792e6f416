package doctree

import (
	"errors"
	"fmt"
)

// Validate checks the structural invariants every built forest must satisfy.
// It returns all violations joined into one error.
func Validate(t *DocTree) error {
	if t == nil {
		return nil
	}
	var errs []error
	seen := make(map[*DocNode]bool)

	var check func(parent *DocNode, nodes []*DocNode)
	check = func(parent *DocNode, nodes []*DocNode) {
		for i, n := range nodes {
			if seen[n] {
				errs = append(errs, fmt.Errorf("node %q reachable twice", n.Label))
				continue
			}
			seen[n] = true

			if n.Content.Start != n.Header.Start {
				errs = append(errs, fmt.Errorf("node %q: content starts at %d, header at %d", n.Label, n.Content.Start, n.Header.Start))
			}
			if n.Content.End < n.Header.End {
				errs = append(errs, fmt.Errorf("node %q: content %v ends before header %v", n.Label, n.Content, n.Header))
			}
			if n.parent != parent {
				errs = append(errs, fmt.Errorf("node %q: parent reference does not match owner", n.Label))
			}
			if parent != nil && !parent.Content.StrictlyContains(n.Content) {
				errs = append(errs, fmt.Errorf("node %q %v not strictly inside parent %q %v", n.Label, n.Content, parent.Label, parent.Content))
			}
			if i > 0 {
				prev := nodes[i-1]
				if prev.Content.End >= n.Content.Start {
					errs = append(errs, fmt.Errorf("siblings %q %v and %q %v overlap or are out of order", prev.Label, prev.Content, n.Label, n.Content))
				}
			}
			if t.LineCount > 0 && n.Content.End >= t.LineCount {
				errs = append(errs, fmt.Errorf("node %q ends at %d past document end", n.Label, n.Content.End))
			}
			check(n, n.Children)
		}
	}
	check(nil, t.Children)
	return errors.Join(errs...)
}
