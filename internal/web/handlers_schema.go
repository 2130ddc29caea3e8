package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SchemaListResponse is the body of GET /api/schema/list.
type SchemaListResponse struct {
	Schemas []string `json:"schemas"`
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	names, err := s.schemas.List()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, SchemaListResponse{Schemas: names})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	doc, err := s.schemas.Get(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, doc)
}
