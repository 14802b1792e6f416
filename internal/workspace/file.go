package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/mover"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/provider"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// FileDocument outlines and reorganizes a document on disk. Every call
// re-reads the file, so edits made by other programs are picked up.
type FileDocument struct {
	w       *Workspace
	handle  *fileHandle
	docType string
	disp    *provider.Dispatcher
}

// fileHandle is the store and mover shared by every FileDocument open on
// one path, so that moves on the path exclude each other and edits are
// checked and written one at a time.
type fileHandle struct {
	path  string
	file  *textbuf.File
	mover *mover.Mover
	refs  int
}

// OpenFile prepares path for outlining. docType overrides detection from the
// file extension when set.
func (w *Workspace) OpenFile(path, docType string) (*FileDocument, error) {
	if docType == "" {
		t, err := parser.DetectType(path)
		if err != nil {
			return nil, err
		}
		docType = t
	}
	h, err := w.acquireFile(path, docType)
	if err != nil {
		return nil, err
	}
	return &FileDocument{
		w:       w,
		handle:  h,
		docType: docType,
		disp: provider.NewDispatcher(w.reg, provider.Options{
			RetryBudget:  w.opts.RetryBudget,
			RetryBackoff: w.opts.RetryBackoff,
			Stats:        w.stats,
			Logger:       w.log.With("path", h.path),
		}),
	}, nil
}

func (w *Workspace) acquireFile(path, docType string) (*fileHandle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	w.filesMu.Lock()
	defer w.filesMu.Unlock()
	h, ok := w.files[abs]
	if !ok {
		file := textbuf.NewFile(abs, docType)
		h = &fileHandle{path: abs, file: file, mover: mover.New(file, w.log.With("path", abs))}
		w.files[abs] = h
	}
	h.refs++
	return h, nil
}

func (w *Workspace) releaseFile(h *fileHandle) {
	w.filesMu.Lock()
	defer w.filesMu.Unlock()
	h.refs--
	if h.refs <= 0 && w.files[h.path] == h {
		delete(w.files, h.path)
	}
}

// Path returns the absolute file path.
func (d *FileDocument) Path() string {
	return d.handle.path
}

// Outline reads the file and builds its outline. When the symbol source
// fails the returned tree is still usable and err wraps
// provider.ErrSourceFailed.
func (d *FileDocument) Outline(ctx context.Context) (*doctree.DocTree, error) {
	snap, err := d.handle.file.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	snap.Type = d.docType
	err = d.disp.Refresh(ctx, &snap)
	if err != nil && !errors.Is(err, provider.ErrSourceFailed) {
		return nil, err
	}
	return d.disp.Tree(), err
}

// Locate outlines the file and returns the innermost section containing line.
func (d *FileDocument) Locate(ctx context.Context, line int) (*doctree.DocNode, bool, error) {
	tree, err := d.Outline(ctx)
	if tree == nil {
		return nil, false, err
	}
	n, ok := doctree.Locate(tree, line)
	return n, ok, nil
}

// Move relocates the section whose header starts at source to target,
// rewriting the file atomically, and returns the new outline. A concurrent
// move on the same path fails with mover.ErrMoveInProgress, and one that
// lost the race to an earlier edit fails with mover.ErrStaleTree.
func (d *FileDocument) Move(ctx context.Context, source, target int) (*doctree.DocTree, error) {
	tree, err := d.Outline(ctx)
	if tree == nil {
		return nil, fmt.Errorf("outline %s: %w", d.Path(), err)
	}
	if err := d.handle.mover.Move(ctx, tree, source, target); err != nil {
		return nil, err
	}
	tree, err = d.Outline(ctx)
	if tree == nil {
		return nil, err
	}
	return tree, nil
}

// Close releases the document's symbol source and its share of the file.
func (d *FileDocument) Close() error {
	if d.handle == nil {
		return nil
	}
	d.w.releaseFile(d.handle)
	d.handle = nil
	return d.disp.Close()
}
