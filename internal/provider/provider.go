// Package provider selects the symbol source for a document's type, turns its
// answers into an outline forest, and publishes the forest to listeners.
package provider

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// SymbolSource is the primary structure provider for a document type.
type SymbolSource interface {
	Symbols(ctx context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error)
}

// FallbackParser scans raw text when the source reports nothing.
type FallbackParser interface {
	Scan(text string) []doctree.Symbol
}

// FallbackFunc adapts a function to FallbackParser.
type FallbackFunc func(text string) []doctree.Symbol

func (f FallbackFunc) Scan(text string) []doctree.Symbol { return f(text) }

// Pair is the source and fallback active for one document type. Either may
// be nil.
type Pair struct {
	Source   SymbolSource
	Fallback FallbackParser
}

// Close releases the source if it holds resources.
func (p *Pair) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	if c, ok := p.Source.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := p.Fallback.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Factory creates a fresh pair when a dispatcher switches to a type.
type Factory func() (Pair, error)

// Strategy holds the per-type hooks applied to every symbol before the
// forest is built. Nil hooks are skipped.
type Strategy struct {
	NormalizeLabel func(label string) string
	// ResolveLevel overrides a symbol's level; returning 0 keeps it.
	ResolveLevel func(kind doctree.Kind, name string) int
	// Title derives the forest title from the document text.
	Title func(text string) string
}

// Apply runs the hooks over syms in place.
func (s Strategy) Apply(syms []doctree.Symbol) {
	for i := range syms {
		if s.NormalizeLabel != nil {
			syms[i].Name = s.NormalizeLabel(syms[i].Name)
		}
		if s.ResolveLevel != nil {
			if lvl := s.ResolveLevel(syms[i].Kind, syms[i].Name); lvl != 0 {
				syms[i].Level = lvl
			}
		}
	}
}

// Entry registers one document type.
type Entry struct {
	Factory  Factory
	Strategy Strategy
	// AwaitReady marks sources that may answer empty until they have
	// indexed the document; the first empty answer is retried once.
	AwaitReady bool
}

// Registry maps document type tags to entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the entry for docType.
func (r *Registry) Register(docType string, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[docType] = e
}

// Lookup returns the entry for docType.
func (r *Registry) Lookup(docType string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[docType]
	return e, ok
}

// Types lists registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
