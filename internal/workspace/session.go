package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/mover"
	"github.com/dgallion1/docoutline/internal/provider"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// Session is one open document view: its text buffer, the dispatcher that
// keeps its outline current, and the mover that edits it.
type Session struct {
	mu sync.Mutex

	ID        string
	Filename  string
	CreatedAt time.Time
	UpdatedAt time.Time

	buf   *textbuf.Buffer
	disp  *provider.Dispatcher
	mover *mover.Mover
	log   *slog.Logger
}

// Info is a read-only, JSON-safe summary of a session.
type Info struct {
	ID        string    `json:"doc_id"`
	Filename  string    `json:"filename"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	LineCount int       `json:"line_count"`
	Sections  int       `json:"sections"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Refresh rebuilds the outline from the current buffer contents.
func (s *Session) Refresh(ctx context.Context) error {
	snap := s.buf.Current()
	err := s.disp.Refresh(ctx, &snap)
	s.touch()
	return err
}

// Outline returns the committed outline. It may lag the buffer while a
// refresh is in flight.
func (s *Session) Outline() *doctree.DocTree {
	return s.disp.Tree()
}

// Locate returns the innermost section containing line.
func (s *Session) Locate(line int) (*doctree.DocNode, bool) {
	s.touch()
	return s.disp.Locate(line)
}

// Text returns the current buffer snapshot.
func (s *Session) Text() textbuf.Snapshot {
	return s.buf.Current()
}

// Update replaces the document text, and its type when docType is set, then
// refreshes the outline.
func (s *Session) Update(ctx context.Context, text, docType string) error {
	if docType != "" && docType != s.buf.Current().Type {
		s.buf.SetType(docType)
	}
	s.buf.Replace(text)
	return s.Refresh(ctx)
}

// Move relocates the section whose header starts at source to target and
// refreshes the outline. Mover errors are returned unwrapped so callers can
// match them with errors.Is.
func (s *Session) Move(ctx context.Context, source, target int) error {
	if err := s.mover.Move(ctx, s.disp.Tree(), source, target); err != nil {
		return err
	}
	if err := s.Refresh(ctx); err != nil {
		if !errors.Is(err, provider.ErrSourceFailed) {
			return err
		}
		s.log.Warn("outline refresh after move failed", "error", err)
	}
	return nil
}

// Info summarizes the session.
func (s *Session) Info() Info {
	snap := s.buf.Current()
	tree := s.disp.Tree()

	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.ID,
		Filename:  s.Filename,
		Type:      snap.Type,
		Version:   snap.Version,
		LineCount: snap.LineCount(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if tree != nil {
		info.Title = tree.Title
		info.Sections = doctree.Count(tree)
	}
	return info
}

// Close releases the session's symbol source.
func (s *Session) Close() error {
	return s.disp.Close()
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
}

func (s *Session) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UpdatedAt
}
