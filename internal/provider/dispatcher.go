package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// ErrSourceFailed wraps a symbol source error that left no usable symbols.
var ErrSourceFailed = errors.New("symbol source failed")

const (
	DefaultRetryBudget  = 2 * time.Second
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Options configures a Dispatcher.
type Options struct {
	RetryBudget  time.Duration // Bound on a not-yet-ready source's first answer
	RetryBackoff time.Duration // Wait before the single retry
	Stats        *RefreshStats
	Logger       *slog.Logger
}

// Event is delivered to listeners after a commit.
type Event struct {
	Generation uint64
	URI        string
	Tree       *doctree.DocTree // nil when the document was closed
}

// Dispatcher owns the active source pair and the committed forest for one
// document view. Refresh may be called concurrently; only the most recently
// issued refresh is allowed to commit.
type Dispatcher struct {
	reg  *Registry
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	gen        uint64
	activeType string
	pair       *Pair
	tree       *doctree.DocTree
	listeners  map[int]func(Event)
	nextID     int

	// notifyMu orders event delivery; delivered is the newest generation
	// listeners have seen.
	notifyMu  sync.Mutex
	delivered uint64
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *Registry, opts Options) *Dispatcher {
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = DefaultRetryBudget
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		reg:       reg,
		opts:      opts,
		log:       log,
		listeners: make(map[int]func(Event)),
	}
}

// Subscribe registers fn for tree-changed events and returns a function
// that removes it.
func (d *Dispatcher) Subscribe(fn func(Event)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// Tree returns the committed forest. It is never mutated after commit.
func (d *Dispatcher) Tree() *doctree.DocTree {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tree
}

// Locate resolves line against the committed forest.
func (d *Dispatcher) Locate(line int) (*doctree.DocNode, bool) {
	return doctree.Locate(d.Tree(), line)
}

// ActiveType returns the type of the active pair.
func (d *Dispatcher) ActiveType() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeType
}

// Generation returns the most recently issued refresh generation.
func (d *Dispatcher) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen
}

// Stats returns the refresh latency aggregate.
func (d *Dispatcher) Stats() StatsSnapshot {
	return d.opts.Stats.Snapshot()
}

// Close releases the active pair and clears the forest.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.gen++
	pair := d.pair
	d.pair, d.activeType, d.tree = nil, "", nil
	d.mu.Unlock()
	return pair.Close()
}

// Refresh rebuilds the forest for snap. A nil snap means no document is
// active: the forest is cleared and listeners are told so.
func (d *Dispatcher) Refresh(ctx context.Context, snap *textbuf.Snapshot) error {
	start := time.Now()

	d.mu.Lock()
	d.gen++
	gen := d.gen

	if snap == nil {
		old := d.pair
		d.pair, d.activeType, d.tree = nil, "", nil
		d.mu.Unlock()
		if err := old.Close(); err != nil {
			d.log.Warn("closing symbol source", "error", err)
		}
		d.opts.Stats.Record(time.Since(start), OutcomeCleared)
		d.notify(Event{Generation: gen})
		return nil
	}

	entry, known := d.reg.Lookup(snap.Type)
	if !known {
		d.log.Debug("no provider registered for type", "type", snap.Type, "uri", snap.URI)
	}
	var retired *Pair
	if snap.Type != d.activeType {
		old := d.pair
		d.pair = nil
		d.activeType = snap.Type
		if entry.Factory != nil {
			p, err := entry.Factory()
			if err != nil {
				d.log.Error("creating symbol source", "type", snap.Type, "error", err)
			} else {
				d.pair = &p
			}
		}
		retired = old
	}
	pair := d.pair
	d.mu.Unlock()

	if err := retired.Close(); err != nil {
		d.log.Warn("closing symbol source", "error", err)
	}

	syms, usedFallback, srcErr := d.collect(ctx, gen, pair, entry, *snap)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if srcErr != nil && len(syms) == 0 {
		return d.fail(gen, start, snap, srcErr)
	}

	entry.Strategy.Apply(syms)
	tree, skipped := doctree.Build(syms, snap.LineCount())
	tree.URI = snap.URI
	tree.Version = snap.Version
	tree.Title = d.title(entry.Strategy, snap)
	for _, s := range skipped {
		d.log.Warn("skipping malformed symbol", "uri", snap.URI, "index", s.Index, "name", s.Symbol.Name, "reason", s.Reason)
	}

	outcome := OutcomeCommitted
	if usedFallback {
		outcome = OutcomeFallback
	}
	if !d.commit(gen, tree) {
		outcome = OutcomeDiscarded
		d.log.Debug("discarding stale refresh", "uri", snap.URI, "generation", gen)
	} else {
		d.log.Debug("outline refreshed",
			"uri", snap.URI,
			"generation", gen,
			"nodes", doctree.Count(tree),
			"fallback", usedFallback,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		d.notify(Event{Generation: gen, URI: snap.URI, Tree: tree})
	}
	d.opts.Stats.Record(time.Since(start), outcome)
	return nil
}

// collect asks the source, retrying once when it is not ready yet, and runs
// the fallback when the source produced nothing.
func (d *Dispatcher) collect(ctx context.Context, gen uint64, pair *Pair, entry Entry, snap textbuf.Snapshot) ([]doctree.Symbol, bool, error) {
	if pair == nil {
		return nil, false, nil
	}

	var syms []doctree.Symbol
	var err error
	if pair.Source != nil {
		if entry.AwaitReady {
			syms, err = d.askWithRetry(ctx, gen, pair.Source, snap)
		} else {
			syms, err = ask(ctx, pair.Source, snap)
		}
	}
	if err != nil {
		d.log.Warn("symbol source failed", "uri", snap.URI, "type", snap.Type, "error", err)
	}

	if len(syms) == 0 && pair.Fallback != nil {
		if fb := pair.Fallback.Scan(snap.Text); len(fb) > 0 {
			return fb, true, nil
		}
	}
	return syms, false, err
}

// askWithRetry bounds the first answer by the retry budget; an empty or late
// answer is retried once after a cancellable backoff.
func (d *Dispatcher) askWithRetry(ctx context.Context, gen uint64, src SymbolSource, snap textbuf.Snapshot) ([]doctree.Symbol, error) {
	first, cancel := context.WithTimeout(ctx, d.opts.RetryBudget)
	syms, err := ask(first, src, snap)
	cancel()
	if len(syms) > 0 || ctx.Err() != nil {
		return syms, err
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	timer := time.NewTimer(d.opts.RetryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	if d.superseded(gen) {
		return nil, nil
	}

	second, cancel := context.WithTimeout(ctx, d.opts.RetryBudget)
	defer cancel()
	d.log.Debug("retrying symbol source", "uri", snap.URI, "type", snap.Type)
	return ask(second, src, snap)
}

// ask calls the source, turning a panic into an error.
func ask(ctx context.Context, src SymbolSource, snap textbuf.Snapshot) (syms []doctree.Symbol, err error) {
	defer func() {
		if r := recover(); r != nil {
			syms, err = nil, fmt.Errorf("symbol source panicked: %v", r)
		}
	}()
	return src.Symbols(ctx, snap)
}

// fail handles a refresh whose source failed outright. The last good forest
// for the same document stays published; a different document gets an
// empty forest so stale structure is never shown for it.
func (d *Dispatcher) fail(gen uint64, start time.Time, snap *textbuf.Snapshot, srcErr error) error {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		d.opts.Stats.Record(time.Since(start), OutcomeDiscarded)
		return nil
	}
	if d.tree != nil && d.tree.URI == snap.URI {
		d.mu.Unlock()
		d.opts.Stats.Record(time.Since(start), OutcomeRetained)
		return fmt.Errorf("%w: %w", ErrSourceFailed, srcErr)
	}
	empty := &doctree.DocTree{URI: snap.URI, Version: snap.Version, LineCount: snap.LineCount()}
	d.tree = empty
	d.mu.Unlock()

	d.opts.Stats.Record(time.Since(start), OutcomeCommitted)
	d.notify(Event{Generation: gen, URI: snap.URI, Tree: empty})
	return fmt.Errorf("%w: %w", ErrSourceFailed, srcErr)
}

// commit publishes tree if gen is still the latest issued generation.
func (d *Dispatcher) commit(gen uint64, tree *doctree.DocTree) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return false
	}
	d.tree = tree
	return true
}

func (d *Dispatcher) superseded(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen != d.gen
}

// notify calls listeners outside the state lock. Events older than one
// already delivered are dropped, so listeners never regress to an earlier
// tree. Listeners must not call Refresh synchronously.
func (d *Dispatcher) notify(ev Event) {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	if ev.Generation <= d.delivered {
		d.log.Debug("dropping out-of-order tree event", "generation", ev.Generation, "delivered", d.delivered)
		return
	}
	d.delivered = ev.Generation

	d.mu.Lock()
	fns := make([]func(Event), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (d *Dispatcher) title(s Strategy, snap *textbuf.Snapshot) string {
	if s.Title != nil {
		if t := s.Title(snap.Text); t != "" {
			return t
		}
	}
	return parser.TitleFor(snap.URI)
}
