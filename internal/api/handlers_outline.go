package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/mover"
)

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	tree := sess.Outline()
	if tree == nil {
		tree = &doctree.DocTree{Children: []*doctree.DocNode{}}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outline":        tree,
		"end_insertion":  doctree.EndInsertionLine(tree),
		"document_lines": sess.Text().LineCount(),
	})
}

// locateResponse describes the innermost section containing a line, for
// reveal and select in a host editor.
type locateResponse struct {
	Line       int           `json:"line"`
	Found      bool          `json:"found"`
	Label      string        `json:"label,omitempty"`
	Kind       doctree.Kind  `json:"kind,omitempty"`
	Header     doctree.Range `json:"header"`
	Content    doctree.Range `json:"content"`
	Breadcrumb []string      `json:"breadcrumb,omitempty"`
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	line, err := strconv.Atoi(r.URL.Query().Get("line"))
	if err != nil {
		jsonError(w, "line query parameter must be an integer", http.StatusBadRequest)
		return
	}

	resp := locateResponse{Line: line}
	if n, found := sess.Locate(line); found {
		resp.Found = true
		resp.Label = n.Label
		resp.Kind = n.Kind
		resp.Header = n.Header
		resp.Content = n.Content
		resp.Breadcrumb = doctree.Breadcrumb(n)
	}
	writeJSON(w, http.StatusOK, resp)
}

type moveRequest struct {
	Source *int `json:"source"`
	Target *int `json:"target"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Source == nil || req.Target == nil {
		jsonError(w, "source and target are required", http.StatusBadRequest)
		return
	}

	if err := sess.Move(r.Context(), *req.Source, *req.Target); err != nil {
		code := moveStatus(err)
		if code >= http.StatusInternalServerError {
			s.log.Error("move failed", "doc_id", sess.ID, "source", *req.Source, "target", *req.Target, "error", err)
		}
		jsonError(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": sess.Info(),
		"outline":  sess.Outline(),
	})
}

func moveStatus(err error) int {
	switch {
	case errors.Is(err, mover.ErrMoveInProgress), errors.Is(err, mover.ErrStaleTree):
		return http.StatusConflict
	case errors.Is(err, mover.ErrSourceNotFound), errors.Is(err, mover.ErrSelfNested):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
