package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

type sourceFunc func(ctx context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error)

func (f sourceFunc) Symbols(ctx context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error) {
	return f(ctx, snap)
}

type closingSource struct {
	sourceFunc
	closed atomic.Int32
}

func (c *closingSource) Close() error {
	c.closed.Add(1)
	return nil
}

func heading(name string, level, line int) doctree.Symbol {
	r := doctree.Line(line)
	return doctree.Symbol{Name: name, Kind: doctree.KindHeading, Level: level, Header: &r}
}

func fixed(syms ...doctree.Symbol) sourceFunc {
	return func(context.Context, textbuf.Snapshot) ([]doctree.Symbol, error) {
		out := make([]doctree.Symbol, len(syms))
		copy(out, syms)
		return out, nil
	}
}

func snapshot(uri, docType, text string) *textbuf.Snapshot {
	return &textbuf.Snapshot{URI: uri, Type: docType, Text: text, Version: "1"}
}

func registryWith(docType string, e Entry) *Registry {
	reg := NewRegistry()
	reg.Register(docType, e)
	return reg
}

func pairOf(src SymbolSource, fb FallbackParser) Factory {
	return func() (Pair, error) { return Pair{Source: src, Fallback: fb}, nil }
}

func labels(tree *doctree.DocTree) []string {
	var out []string
	doctree.Walk(tree, func(n *doctree.DocNode, depth int) bool {
		prefix := ""
		for i := 0; i < depth; i++ {
			prefix += ">"
		}
		out = append(out, prefix+n.Label)
		return true
	})
	return out
}

const fourLines = "# A\na\n## B\nb\n"

func TestRefreshCommitsAndNotifies(t *testing.T) {
	stats := NewRefreshStats(time.Hour)
	reg := registryWith("doc", Entry{Factory: pairOf(fixed(heading("A", 1, 0), heading("B", 2, 2)), nil)})
	d := NewDispatcher(reg, Options{Stats: stats})

	var events []Event
	unsubscribe := d.Subscribe(func(ev Event) { events = append(events, ev) })

	require.NoError(t, d.Refresh(context.Background(), snapshot("file:///notes/guide.doc", "doc", fourLines)))

	tree := d.Tree()
	require.NotNil(t, tree)
	assert.Equal(t, []string{"A", ">B"}, labels(tree))
	assert.Equal(t, "guide", tree.Title)
	assert.Equal(t, "1", tree.Version)
	assert.Equal(t, 4, tree.LineCount)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Generation)
	assert.Same(t, tree, events[0].Tree)

	n, ok := d.Locate(3)
	require.True(t, ok)
	assert.Equal(t, "B", n.Label)

	unsubscribe()
	require.NoError(t, d.Refresh(context.Background(), snapshot("file:///notes/guide.doc", "doc", fourLines)))
	assert.Len(t, events, 1)
	assert.Equal(t, 2, stats.Snapshot().Outcomes[OutcomeCommitted])
}

func TestRefreshAppliesStrategy(t *testing.T) {
	reg := registryWith("doc", Entry{
		Factory: pairOf(fixed(heading("  Intro   text ", 1, 0), heading("B", 1, 2)), nil),
		Strategy: Strategy{
			NormalizeLabel: collapseSpace,
			ResolveLevel: func(_ doctree.Kind, name string) int {
				if name == "B" {
					return 2
				}
				return 0
			},
			Title: func(string) string { return "Custom" },
		},
	})
	d := NewDispatcher(reg, Options{})
	require.NoError(t, d.Refresh(context.Background(), snapshot("mem://x", "doc", fourLines)))

	assert.Equal(t, []string{"Intro text", ">B"}, labels(d.Tree()))
	assert.Equal(t, "Custom", d.Tree().Title)
}

func TestRefreshRunsFallbackWhenSourceIsEmpty(t *testing.T) {
	stats := NewRefreshStats(time.Hour)
	reg := registryWith("doc", Entry{Factory: pairOf(fixed(), parser.MarkdownMarkers())})
	d := NewDispatcher(reg, Options{Stats: stats})

	require.NoError(t, d.Refresh(context.Background(), snapshot("mem://x", "doc", fourLines)))
	assert.Equal(t, []string{"A", ">B"}, labels(d.Tree()))
	assert.Equal(t, 1, stats.Snapshot().Outcomes[OutcomeFallback])
}

func TestRefreshRetainsLastGoodForestOnFailure(t *testing.T) {
	var fail atomic.Bool
	src := sourceFunc(func(context.Context, textbuf.Snapshot) ([]doctree.Symbol, error) {
		if fail.Load() {
			return nil, errors.New("server exited")
		}
		return []doctree.Symbol{heading("A", 1, 0)}, nil
	})
	stats := NewRefreshStats(time.Hour)
	d := NewDispatcher(registryWith("doc", Entry{Factory: pairOf(src, nil)}), Options{Stats: stats})
	ctx := context.Background()

	require.NoError(t, d.Refresh(ctx, snapshot("mem://one", "doc", fourLines)))
	good := d.Tree()

	fail.Store(true)
	err := d.Refresh(ctx, snapshot("mem://one", "doc", fourLines+"more\n"))
	require.ErrorIs(t, err, ErrSourceFailed)
	assert.Contains(t, err.Error(), "server exited")
	assert.Same(t, good, d.Tree())
	assert.Equal(t, 1, stats.Snapshot().Outcomes[OutcomeRetained])

	// A different document never inherits another document's structure.
	err = d.Refresh(ctx, snapshot("mem://two", "doc", fourLines))
	require.ErrorIs(t, err, ErrSourceFailed)
	require.NotNil(t, d.Tree())
	assert.Equal(t, "mem://two", d.Tree().URI)
	assert.True(t, d.Tree().Empty())
}

func TestRefreshRecoversSourcePanic(t *testing.T) {
	src := sourceFunc(func(context.Context, textbuf.Snapshot) ([]doctree.Symbol, error) {
		panic("index out of range")
	})
	d := NewDispatcher(registryWith("doc", Entry{Factory: pairOf(src, parser.MarkdownMarkers())}), Options{})

	require.NoError(t, d.Refresh(context.Background(), snapshot("mem://x", "doc", fourLines)))
	assert.Equal(t, []string{"A", ">B"}, labels(d.Tree()))
}

func TestRefreshNilSnapshotClears(t *testing.T) {
	src := &closingSource{sourceFunc: fixed(heading("A", 1, 0))}
	d := NewDispatcher(registryWith("doc", Entry{Factory: pairOf(src, nil)}), Options{})

	var last Event
	d.Subscribe(func(ev Event) { last = ev })

	require.NoError(t, d.Refresh(context.Background(), snapshot("mem://x", "doc", fourLines)))
	require.NotNil(t, d.Tree())

	require.NoError(t, d.Refresh(context.Background(), nil))
	assert.Nil(t, d.Tree())
	assert.Nil(t, last.Tree)
	assert.Equal(t, "", d.ActiveType())
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestRefreshTypeSwitchReplacesPair(t *testing.T) {
	first := &closingSource{sourceFunc: fixed(heading("A", 1, 0))}
	second := &closingSource{sourceFunc: fixed(heading("B", 1, 2))}
	var created atomic.Int32

	reg := NewRegistry()
	reg.Register("one", Entry{Factory: func() (Pair, error) {
		created.Add(1)
		return Pair{Source: first}, nil
	}})
	reg.Register("two", Entry{Factory: func() (Pair, error) {
		created.Add(1)
		return Pair{Source: second}, nil
	}})
	d := NewDispatcher(reg, Options{})
	ctx := context.Background()

	require.NoError(t, d.Refresh(ctx, snapshot("mem://x", "one", fourLines)))
	require.NoError(t, d.Refresh(ctx, snapshot("mem://x", "one", fourLines)))
	assert.Equal(t, int32(1), created.Load(), "same type reuses the active pair")

	require.NoError(t, d.Refresh(ctx, snapshot("mem://x", "two", fourLines)))
	assert.Equal(t, int32(2), created.Load())
	assert.Equal(t, int32(1), first.closed.Load())
	assert.Equal(t, "two", d.ActiveType())
	assert.Equal(t, []string{"B"}, labels(d.Tree()))

	require.NoError(t, d.Close())
	assert.Equal(t, int32(1), second.closed.Load())
}

type blockingCloser struct {
	sourceFunc
	entered chan struct{}
	release chan struct{}
}

func (b *blockingCloser) Close() error {
	close(b.entered)
	<-b.release
	return nil
}

func TestRefreshTypeSwitchClosesOldPairWithoutBlockingReaders(t *testing.T) {
	old := &blockingCloser{
		sourceFunc: fixed(heading("A", 1, 0)),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	reg := NewRegistry()
	reg.Register("one", Entry{Factory: pairOf(old, nil)})
	reg.Register("two", Entry{Factory: pairOf(fixed(heading("B", 1, 2)), nil)})
	d := NewDispatcher(reg, Options{})
	ctx := context.Background()
	require.NoError(t, d.Refresh(ctx, snapshot("mem://x", "one", fourLines)))

	done := make(chan error, 1)
	go func() { done <- d.Refresh(ctx, snapshot("mem://x", "two", fourLines)) }()
	<-old.entered

	got := make(chan *doctree.DocTree, 1)
	go func() { got <- d.Tree() }()
	select {
	case tree := <-got:
		assert.Equal(t, []string{"A"}, labels(tree))
	case <-time.After(time.Second):
		t.Fatal("Tree blocked while the old source was closing")
	}

	close(old.release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"B"}, labels(d.Tree()))
}

func TestNotifyDropsEventsOlderThanDelivered(t *testing.T) {
	d := NewDispatcher(NewRegistry(), Options{})
	var gens []uint64
	d.Subscribe(func(ev Event) { gens = append(gens, ev.Generation) })

	d.notify(Event{Generation: 3})
	d.notify(Event{Generation: 2, Tree: &doctree.DocTree{}})
	d.notify(Event{Generation: 3})
	d.notify(Event{Generation: 4})
	assert.Equal(t, []uint64{3, 4}, gens)
}

func TestRefreshUnknownTypeCommitsEmptyForest(t *testing.T) {
	d := NewDispatcher(NewRegistry(), Options{})
	require.NoError(t, d.Refresh(context.Background(), snapshot("mem://x", "nope", fourLines)))
	require.NotNil(t, d.Tree())
	assert.True(t, d.Tree().Empty())
}

func TestRefreshDiscardsSupersededResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := sourceFunc(func(_ context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error) {
		if snap.Version == "slow" {
			close(entered)
			<-release
			return []doctree.Symbol{heading("Old", 1, 0)}, nil
		}
		return []doctree.Symbol{heading("New", 1, 0)}, nil
	})
	stats := NewRefreshStats(time.Hour)
	d := NewDispatcher(registryWith("doc", Entry{Factory: pairOf(src, nil)}), Options{Stats: stats})

	var mu sync.Mutex
	var gens []uint64
	d.Subscribe(func(ev Event) {
		mu.Lock()
		gens = append(gens, ev.Generation)
		mu.Unlock()
	})

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- d.Refresh(ctx, &textbuf.Snapshot{URI: "mem://x", Type: "doc", Text: fourLines, Version: "slow"})
	}()
	<-entered

	require.NoError(t, d.Refresh(ctx, &textbuf.Snapshot{URI: "mem://x", Type: "doc", Text: fourLines, Version: "fast"}))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"New"}, labels(d.Tree()))
	assert.Equal(t, "fast", d.Tree().Version)
	mu.Lock()
	assert.Equal(t, []uint64{2}, gens)
	mu.Unlock()
	assert.Equal(t, 1, stats.Snapshot().Outcomes[OutcomeDiscarded])
}

func TestRefreshAwaitReadyRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	src := sourceFunc(func(context.Context, textbuf.Snapshot) ([]doctree.Symbol, error) {
		if calls.Add(1) == 1 {
			return nil, nil
		}
		return []doctree.Symbol{heading("Ready", 1, 0)}, nil
	})
	d := NewDispatcher(
		registryWith("doc", Entry{Factory: pairOf(src, nil), AwaitReady: true}),
		Options{RetryBudget: time.Second, RetryBackoff: 5 * time.Millisecond},
	)

	require.NoError(t, d.Refresh(context.Background(), snapshot("mem://x", "doc", fourLines)))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"Ready"}, labels(d.Tree()))
}

func TestRefreshAwaitReadyRetriesAfterBudget(t *testing.T) {
	var calls atomic.Int32
	src := sourceFunc(func(ctx context.Context, _ textbuf.Snapshot) ([]doctree.Symbol, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []doctree.Symbol{heading("Late", 1, 0)}, nil
	})
	d := NewDispatcher(
		registryWith("doc", Entry{Factory: pairOf(src, nil), AwaitReady: true}),
		Options{RetryBudget: 20 * time.Millisecond, RetryBackoff: time.Millisecond},
	)

	require.NoError(t, d.Refresh(context.Background(), snapshot("mem://x", "doc", fourLines)))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"Late"}, labels(d.Tree()))
}

func TestRefreshWithoutAwaitReadyDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	src := sourceFunc(func(context.Context, textbuf.Snapshot) ([]doctree.Symbol, error) {
		calls.Add(1)
		return nil, nil
	})
	d := NewDispatcher(registryWith("doc", Entry{Factory: pairOf(src, nil)}), Options{RetryBackoff: time.Millisecond})

	require.NoError(t, d.Refresh(context.Background(), snapshot("mem://x", "doc", fourLines)))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, d.Tree().Empty())
}

func TestRefreshBackoffIsCancellable(t *testing.T) {
	src := sourceFunc(func(context.Context, textbuf.Snapshot) ([]doctree.Symbol, error) {
		return nil, nil
	})
	d := NewDispatcher(
		registryWith("doc", Entry{Factory: pairOf(src, nil), AwaitReady: true}),
		Options{RetryBackoff: time.Hour},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := d.Refresh(ctx, snapshot("mem://x", "doc", fourLines))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Nil(t, d.Tree())
}

func TestDefaultRegistryTypes(t *testing.T) {
	reg := DefaultRegistry(RegistryOptions{})
	for _, docType := range []string{
		parser.TypeMarkdown, parser.TypeHTML, parser.TypeOrg, parser.TypeAsciiDoc,
		parser.TypePlainText, parser.TypeGo, parser.TypePython, parser.TypeRust, parser.TypeTypeScript,
	} {
		_, ok := reg.Lookup(docType)
		assert.True(t, ok, docType)
	}

	d := NewDispatcher(reg, Options{})
	org := "* TODO Plan :work:\nbody\n** DONE Step one\n"
	require.NoError(t, d.Refresh(context.Background(), snapshot("file:///a/plan.org", parser.TypeOrg, org)))
	assert.Equal(t, []string{"Plan", ">Step one"}, labels(d.Tree()))

	require.NoError(t, d.Refresh(context.Background(), snapshot("file:///a/notes.txt", parser.TypePlainText, "just text\n")))
	assert.True(t, d.Tree().Empty())
	assert.Equal(t, "notes", d.Tree().Title)
}

func TestDefaultRegistryLanguageServerOverlay(t *testing.T) {
	reg := DefaultRegistry(RegistryOptions{LSPServers: []parser.LSPConfig{
		{Type: parser.TypeMarkdown, Command: "marksman", Args: []string{"server"}, LanguageID: "markdown"},
		{Type: "broken"},
	}})

	e, ok := reg.Lookup(parser.TypeMarkdown)
	require.True(t, ok)
	assert.True(t, e.AwaitReady)
	require.NotNil(t, e.Strategy.NormalizeLabel)

	p, err := e.Factory()
	require.NoError(t, err)
	require.NotNil(t, p.Fallback)
	assert.Equal(t, []string{"A", "B"}, symbolNames(p.Fallback.Scan(fourLines)))

	_, ok = reg.Lookup("broken")
	assert.False(t, ok)
}

func TestOrgLabel(t *testing.T) {
	cases := map[string]string{
		"TODO Write docs":          "Write docs",
		"DONE  Ship it   :release:": "Ship it",
		"Plain heading":            "Plain heading",
		"Ratio 1:2":                "Ratio 1:2",
		"Tagged :a:b:":             "Tagged",
	}
	for in, want := range cases {
		assert.Equal(t, want, orgLabel(in), in)
	}
}

func symbolNames(syms []doctree.Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Name
	}
	return out
}
