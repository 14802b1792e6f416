// Package workspace manages the documents open on a host: one session per
// document view, each with its own dispatcher and mover, evicted after a
// period of inactivity.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docoutline/internal/importer"
	"github.com/dgallion1/docoutline/internal/mover"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/provider"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

// ErrNotFound is returned for an unknown or evicted document ID.
var ErrNotFound = errors.New("document not found")

// Options configures a Workspace.
type Options struct {
	SessionTTL      time.Duration
	CleanupInterval time.Duration
	RetryBudget     time.Duration
	RetryBackoff    time.Duration
	MaxBytes        int64 // Upper bound on plain-text uploads
	PDFFallback     bool  // Use pdftotext when the PDF library fails
}

// OpenRequest describes a document to open. Type overrides detection from
// Filename when set.
type OpenRequest struct {
	Filename string `json:"filename"`
	Type     string `json:"type,omitempty"`
	Text     string `json:"text"`
}

// Workspace owns the open sessions.
type Workspace struct {
	sessions *SessionStore
	reg      *provider.Registry
	stats    *provider.RefreshStats
	opts     Options
	log      *slog.Logger

	filesMu sync.Mutex
	files   map[string]*fileHandle // By absolute path

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a workspace that resolves document types through reg.
func New(reg *provider.Registry, opts Options, log *slog.Logger) *Workspace {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = importer.DefaultMaxBytes
	}
	if log == nil {
		log = slog.Default()
	}
	return &Workspace{
		sessions: NewSessionStore(opts.SessionTTL),
		reg:      reg,
		stats:    provider.NewRefreshStats(time.Hour),
		opts:     opts,
		log:      log,
		files:    make(map[string]*fileHandle),
	}
}

// Start launches the idle-session sweeper.
func (w *Workspace) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.opts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				w.Sweep()
			}
		}
	}()
}

// Stop halts the sweeper and closes every session.
func (w *Workspace) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	for _, sess := range w.sessions.List() {
		w.sessions.Delete(sess.ID)
		w.closeSession(sess)
	}
}

// Sweep evicts idle sessions.
func (w *Workspace) Sweep() {
	for _, sess := range w.sessions.Cleanup() {
		w.log.Info("evicting idle document", "doc_id", sess.ID, "filename", sess.Filename)
		w.closeSession(sess)
	}
}

// Open creates a session for req and builds its first outline.
func (w *Workspace) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.Filename == "" {
		return nil, errors.New("filename is required")
	}
	docType := req.Type
	if docType == "" {
		t, err := parser.DetectType(req.Filename)
		if err != nil {
			return nil, err
		}
		docType = t
	}

	id := uuid.NewString()
	log := w.log.With("doc_id", id, "filename", req.Filename)
	buf := textbuf.NewBuffer("mem://"+id+"/"+path.Base(req.Filename), docType, req.Text)
	now := time.Now()
	sess := &Session{
		ID:        id,
		Filename:  req.Filename,
		CreatedAt: now,
		UpdatedAt: now,
		buf:       buf,
		disp: provider.NewDispatcher(w.reg, provider.Options{
			RetryBudget:  w.opts.RetryBudget,
			RetryBackoff: w.opts.RetryBackoff,
			Stats:        w.stats,
			Logger:       log,
		}),
		mover: mover.New(buf, log),
		log:   log,
	}

	if err := sess.Refresh(ctx); err != nil {
		if !errors.Is(err, provider.ErrSourceFailed) {
			w.closeSession(sess)
			return nil, fmt.Errorf("build outline: %w", err)
		}
		log.Warn("initial outline failed", "error", err)
	}
	w.sessions.Put(sess)
	log.Info("document opened", "type", docType, "lines", buf.Current().LineCount())
	return sess, nil
}

// Import reads an upload, converting DOCX and PDF to markdown, and opens it.
func (w *Workspace) Import(ctx context.Context, r io.Reader, filename string) (*Session, error) {
	if imp, ok := importer.ForFile(filename, w.opts.MaxBytes); ok {
		if pdf, isPDF := imp.(*importer.PDFImporter); isPDF {
			pdf.FallbackPdftotext = w.opts.PDFFallback
		}
		text, err := imp.Import(r, filename)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", filename, err)
		}
		return w.Open(ctx, OpenRequest{Filename: importer.MarkdownName(filename), Type: parser.TypeMarkdown, Text: text})
	}

	data, err := io.ReadAll(io.LimitReader(r, w.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if int64(len(data)) > w.opts.MaxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", filename, w.opts.MaxBytes)
	}
	return w.Open(ctx, OpenRequest{Filename: filename, Text: string(data)})
}

// Get returns an open session.
func (w *Workspace) Get(id string) (*Session, error) {
	sess := w.sessions.Get(id)
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// Close removes and releases a session.
func (w *Workspace) Close(id string) error {
	sess := w.sessions.Delete(id)
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	w.closeSession(sess)
	return nil
}

// List summarizes the open sessions, oldest first.
func (w *Workspace) List() []Info {
	sessions := w.sessions.List()
	out := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	return out
}

// Stats returns refresh latency across every session.
func (w *Workspace) Stats() provider.StatsSnapshot {
	return w.stats.Snapshot()
}

// Types lists the registered document types.
func (w *Workspace) Types() []string {
	return w.reg.Types()
}

func (w *Workspace) closeSession(sess *Session) {
	if err := sess.Close(); err != nil {
		w.log.Warn("closing document", "doc_id", sess.ID, "error", err)
	}
}
