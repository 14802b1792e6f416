package textbuf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Store is the host text store a section move is applied to. Apply must be
// atomic: either the whole edit takes effect or the document is untouched.
type Store interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Apply(ctx context.Context, e Edit, baseVersion string) error
}

// Buffer is an in-memory document.
type Buffer struct {
	mu      sync.RWMutex
	uri     string
	typ     string
	text    string
	version int64
}

// NewBuffer creates a buffer at version 1.
func NewBuffer(uri, docType, text string) *Buffer {
	return &Buffer{uri: uri, typ: docType, text: text, version: 1}
}

func (b *Buffer) snapshotLocked() Snapshot {
	return Snapshot{
		URI:     b.uri,
		Type:    b.typ,
		Text:    b.text,
		Version: strconv.FormatInt(b.version, 10),
	}
}

// Snapshot returns the current text and version.
func (b *Buffer) Snapshot(_ context.Context) (Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked(), nil
}

// Current is Snapshot without the context plumbing.
func (b *Buffer) Current() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// Replace swaps in new text, as when the editor reports a change.
func (b *Buffer) Replace(text string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.version++
	return b.snapshotLocked()
}

// SetType changes the document type tag.
func (b *Buffer) SetType(docType string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.typ = docType
	b.version++
	return b.snapshotLocked()
}

// Apply applies e if the buffer is still at baseVersion.
func (b *Buffer) Apply(ctx context.Context, e Edit, baseVersion string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if strconv.FormatInt(b.version, 10) != baseVersion {
		return fmt.Errorf("%w: have %d, edit based on %s", ErrVersionMismatch, b.version, baseVersion)
	}
	out, err := ApplyEdit(b.text, e)
	if err != nil {
		return err
	}
	b.text = out
	b.version++
	return nil
}

// File is a document on disk. Its version is the content hash, and edits are
// written to a temporary file that replaces the original in one rename.
type File struct {
	mu   sync.Mutex
	path string
	typ  string
}

// NewFile creates a store for the file at path.
func NewFile(path, docType string) *File {
	return &File{path: path, typ: docType}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) read() (Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", f.path, err)
	}
	return Snapshot{
		URI:     "file://" + f.path,
		Type:    f.typ,
		Text:    string(data),
		Version: ContentHashHex(data),
	}, nil
}

// Snapshot reads the file.
func (f *File) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Apply rewrites the file with e applied if its content still hashes to
// baseVersion.
func (f *File) Apply(ctx context.Context, e Edit, baseVersion string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := f.read()
	if err != nil {
		return err
	}
	if snap.Version != baseVersion {
		return fmt.Errorf("%w: %s", ErrVersionMismatch, f.path)
	}
	out, err := ApplyEdit(snap.Text, e)
	if err != nil {
		return err
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".outline-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
