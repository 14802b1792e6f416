// Package mover relocates a section, with all of its descendants, to another
// position in the document as one atomic edit.
package mover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

var (
	ErrSourceNotFound = errors.New("no section header starts at source line")
	ErrSelfNested     = errors.New("target lies inside the moved section")
	ErrMoveInProgress = errors.New("another move is in progress for this document")
	ErrStaleTree      = errors.New("outline is stale for the current document version")
	ErrApply          = errors.New("host store rejected the edit")
)

// Mover applies section moves to a single document store. Moves on the same
// Mover never overlap; a second caller is rejected rather than queued.
type Mover struct {
	store textbuf.Store
	log   *slog.Logger
	busy  atomic.Bool
}

// New creates a Mover for store.
func New(store textbuf.Store, log *slog.Logger) *Mover {
	if log == nil {
		log = slog.Default()
	}
	return &Mover{store: store, log: log}
}

// Plan describes a validated move before it is applied.
type Plan struct {
	Source      *doctree.DocNode
	Destination int  // Line the block lands before, in pre-move coordinates
	NoOp        bool // The document would be unchanged
	Edit        textbuf.Edit
}

// Move moves the section whose header starts on source so that it begins
// before targetLine. A nil error means the move was applied or was a no-op.
func (m *Mover) Move(ctx context.Context, tree *doctree.DocTree, source, target int) (err error) {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrMoveInProgress
	}
	defer m.busy.Store(false)

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("section move panicked", "source", source, "target", target, "panic", r)
			err = fmt.Errorf("%w: panic: %v", ErrApply, r)
		}
	}()

	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("%w: snapshot: %w", ErrApply, err)
	}

	plan, err := Prepare(tree, snap, source, target)
	if err != nil {
		return err
	}
	if plan.NoOp {
		m.log.Debug("section move is a no-op", "section", plan.Source.Label, "source", source, "target", target)
		return nil
	}

	if err := m.store.Apply(ctx, plan.Edit, snap.Version); err != nil {
		if errors.Is(err, textbuf.ErrVersionMismatch) {
			return fmt.Errorf("%w: %w", ErrStaleTree, err)
		}
		return fmt.Errorf("%w: %w", ErrApply, err)
	}

	m.log.Info("section moved",
		"section", plan.Source.Label,
		"lines", plan.Source.Content.Len(),
		"from", source,
		"to", plan.Destination,
	)
	return nil
}

// Prepare validates a move against snap and computes its edit without
// touching the document.
func Prepare(tree *doctree.DocTree, snap textbuf.Snapshot, source, target int) (Plan, error) {
	if tree == nil || tree.Version != snap.Version {
		return Plan{}, ErrStaleTree
	}

	src, ok := doctree.FindByHeader(tree, source)
	if !ok {
		return Plan{}, fmt.Errorf("%w: line %d", ErrSourceNotFound, source)
	}
	plan := Plan{Source: src}

	if target == source {
		plan.NoOp = true
		plan.Destination = source
		return plan, nil
	}
	if src.Content.Contains(target) {
		return Plan{}, fmt.Errorf("%w: line %d in %q [%d,%d]", ErrSelfNested, target, src.Label, src.Content.Start, src.Content.End)
	}

	lines := textbuf.SplitLines(snap.Text)
	lineCount := len(lines)
	if src.Content.End >= lineCount {
		return Plan{}, fmt.Errorf("%w: section ends at line %d of %d", ErrStaleTree, src.Content.End, lineCount)
	}
	if target < 0 {
		target = 0
	}
	if target > lineCount {
		target = lineCount
	}

	dest := lineCount
	if n, ok := doctree.HeaderAtOrAfter(tree, target); ok {
		dest = n.Header.Start
	}
	plan.Destination = dest

	block := src.Content
	if dest == block.Start || dest == block.End+1 {
		plan.NoOp = true
		return plan, nil
	}

	insertAt := dest
	if dest > block.End {
		insertAt -= block.Len()
	}
	plan.Edit = textbuf.Edit{
		Delete:   block,
		InsertAt: insertAt,
		Text:     strings.Join(lines[block.Start:block.End+1], ""),
	}
	return plan, nil
}
