package api

import (
	"net/http"
)

func (s *Server) handleRefreshStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": len(s.ws.List()),
		"stats":     s.ws.Stats(),
	})
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": s.ws.Types()})
}
