package mover

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// scenarioText is a 20-line document: A(0, L1) > B(5, L2) > C(10, L3), D(15, L1).
func scenarioText() string {
	var sb strings.Builder
	write := func(heading string, body string) {
		sb.WriteString(heading + "\n")
		for i := 1; i <= 4; i++ {
			sb.WriteString(body + string(rune('0'+i)) + "\n")
		}
	}
	write("# A", "a")
	write("## B", "b")
	write("### C", "c")
	write("# D", "d")
	return sb.String()
}

// headings is a minimal ATX scanner used to rebuild outlines in tests.
func headings(text string) []doctree.Symbol {
	var out []doctree.Symbol
	for i, l := range textbuf.SplitLines(text) {
		l = strings.TrimRight(l, "\r\n")
		level := len(l) - len(strings.TrimLeft(l, "#"))
		if level == 0 || !strings.HasPrefix(l[level:], " ") {
			continue
		}
		r := doctree.Line(i)
		out = append(out, doctree.Symbol{Name: l[level+1:], Kind: doctree.KindHeading, Level: level, Header: &r})
	}
	return out
}

func treeFor(t *testing.T, snap textbuf.Snapshot) *doctree.DocTree {
	t.Helper()
	tree, skipped := doctree.Build(headings(snap.Text), snap.LineCount())
	require.Empty(t, skipped)
	tree.Version = snap.Version
	return tree
}

func labels(tree *doctree.DocTree) []string {
	var out []string
	doctree.Walk(tree, func(n *doctree.DocNode, depth int) bool {
		out = append(out, strings.Repeat(">", depth)+n.Label)
		return true
	})
	return out
}

func TestMove_SubsectionToTop(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	tree := treeFor(t, buf.Current())

	require.NoError(t, New(buf, nil).Move(ctx, tree, 5, 0))

	after := buf.Current()
	assert.Equal(t, 20, after.LineCount())
	lines := textbuf.SplitLines(after.Text)
	assert.Equal(t, "## B\n", lines[0])
	assert.Equal(t, "### C\n", lines[5])
	assert.Equal(t, "# A\n", lines[10])
	assert.Equal(t, "# D\n", lines[15])

	rebuilt := treeFor(t, after)
	assert.Equal(t, []string{"B", ">C", "A", "D"}, labels(rebuilt))
	a := rebuilt.Children[1]
	assert.Equal(t, doctree.Range{Start: 10, End: 14}, a.Content)
	assert.Empty(t, a.Children)
}

func TestMove_SectionToEnd(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	tree := treeFor(t, buf.Current())

	require.NoError(t, New(buf, nil).Move(ctx, tree, 0, 20))

	rebuilt := treeFor(t, buf.Current())
	assert.Equal(t, []string{"D", "A", ">B", ">>C"}, labels(rebuilt))
}

func TestMove_TargetBeyondEndIsClamped(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	tree := treeFor(t, buf.Current())

	require.NoError(t, New(buf, nil).Move(ctx, tree, 0, 500))
	assert.Equal(t, []string{"D", "A", ">B", ">>C"}, labels(treeFor(t, buf.Current())))
}

func TestMove_TargetInBodySnapsToNextHeader(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	tree := treeFor(t, buf.Current())

	// Line 2 is inside A's body; the next header at or after it is B at 5.
	require.NoError(t, New(buf, nil).Move(ctx, tree, 15, 2))
	assert.Equal(t, []string{"A", "D", ">B", ">>C"}, labels(treeFor(t, buf.Current())))
	assert.True(t, strings.HasPrefix(textbuf.SplitLines(buf.Current().Text)[5], "# D"))
}

func TestMove_SelfNestedLeavesDocumentUntouched(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	before := buf.Current()
	tree := treeFor(t, before)

	for _, target := range []int{1, 5, 10, 14} {
		err := New(buf, nil).Move(ctx, tree, 0, target)
		assert.ErrorIs(t, err, ErrSelfNested, "target %d", target)
	}
	assert.Equal(t, before, buf.Current())
}

func TestMove_NoOps(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	before := buf.Current()
	tree := treeFor(t, before)
	m := New(buf, nil)

	// Same line, and the line right after the block.
	require.NoError(t, m.Move(ctx, tree, 5, 5))
	require.NoError(t, m.Move(ctx, tree, 0, 15))
	// A body line before B resolves to B's own header.
	require.NoError(t, m.Move(ctx, tree, 5, 3))
	assert.Equal(t, before, buf.Current())
}

func TestMove_SourceNotFound(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	tree := treeFor(t, buf.Current())

	err := New(buf, nil).Move(ctx, tree, 6, 0)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestMove_StaleTree(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	tree := treeFor(t, buf.Current())
	buf.Replace("# Z\n" + scenarioText())

	err := New(buf, nil).Move(ctx, tree, 5, 0)
	assert.ErrorIs(t, err, ErrStaleTree)
	assert.True(t, strings.HasPrefix(buf.Current().Text, "# Z\n# A\n"))
}

func TestMove_PreservesCRLFAndMissingFinalNewline(t *testing.T) {
	ctx := context.Background()
	text := "# One\r\nfirst\r\n# Two\r\nsecond"
	buf := textbuf.NewBuffer("mem://doc", "markdown", text)
	tree := treeFor(t, buf.Current())

	require.NoError(t, New(buf, nil).Move(ctx, tree, 2, 0))
	assert.Equal(t, "# Two\r\nsecond\r\n# One\r\nfirst", buf.Current().Text)
}

type failingStore struct {
	*textbuf.Buffer
	err   error
	crash bool
}

func (s *failingStore) Apply(context.Context, textbuf.Edit, string) error {
	if s.crash {
		panic("host crashed")
	}
	return s.err
}

func TestMove_StoreFailureIsReported(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	tree := treeFor(t, buf.Current())

	store := &failingStore{Buffer: buf, err: errors.New("disk full")}
	err := New(store, nil).Move(ctx, tree, 5, 0)
	require.ErrorIs(t, err, ErrApply)
	assert.Contains(t, err.Error(), "disk full")

	store = &failingStore{Buffer: buf, crash: true}
	err = New(store, nil).Move(ctx, tree, 5, 0)
	require.ErrorIs(t, err, ErrApply)
	assert.Contains(t, err.Error(), "host crashed")

	assert.Equal(t, scenarioText(), buf.Current().Text)
}

type blockingStore struct {
	*textbuf.Buffer
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Apply(ctx context.Context, e textbuf.Edit, base string) error {
	close(s.entered)
	<-s.release
	return s.Buffer.Apply(ctx, e, base)
}

func TestMove_ConcurrentMoveRejected(t *testing.T) {
	ctx := context.Background()
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	tree := treeFor(t, buf.Current())
	store := &blockingStore{Buffer: buf, entered: make(chan struct{}), release: make(chan struct{})}
	m := New(store, nil)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = m.Move(ctx, tree, 5, 0)
	}()

	<-store.entered
	err := m.Move(ctx, tree, 15, 0)
	assert.ErrorIs(t, err, ErrMoveInProgress)

	close(store.release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, []string{"B", ">C", "A", "D"}, labels(treeFor(t, buf.Current())))
}

func TestPrepare_ShiftsInsertionPastBlock(t *testing.T) {
	buf := textbuf.NewBuffer("mem://doc", "markdown", scenarioText())
	snap := buf.Current()
	tree := treeFor(t, snap)

	plan, err := Prepare(tree, snap, 5, 20)
	require.NoError(t, err)
	assert.False(t, plan.NoOp)
	assert.Equal(t, 20, plan.Destination)
	assert.Equal(t, doctree.Range{Start: 5, End: 14}, plan.Edit.Delete)
	assert.Equal(t, 10, plan.Edit.InsertAt)
}
