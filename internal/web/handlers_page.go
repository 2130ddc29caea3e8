package web

import (
	"net/http"

	"github.com/JonMunkholm/csvload/internal/web/templates"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	names, err := s.schemas.List()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(names, s.cfg.Upload.MaxMB).Render(r.Context(), w); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
