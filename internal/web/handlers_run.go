package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/csvload/internal/core"
)

// maxRunBody bounds the JSON body of a run request.
const maxRunBody = 1 << 20

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (core.RunRequest, error) {
	var req core.RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunBody))
	if err := dec.Decode(&req); err != nil {
		return core.RunRequest{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return req, nil
}

// handleRun loads an uploaded file into its target table.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(w, r)
	if err != nil {
		respondRunError(w, r, err)
		return
	}

	ctx := withRequestMetadata(r.Context(), r)
	result, err := s.service.Run(ctx, req)
	if err != nil {
		respondRunError(w, r, err)
		return
	}

	rows := result.RowsInserted
	writeJSON(w, RunResponse{
		Status:       "success",
		RowsInserted: &rows,
		TableCreated: result.TableCreated,
	})
}

// handleValidateRun checks a run request without loading anything.
func (s *Server) handleValidateRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(w, r)
	if err != nil {
		respondRunError(w, r, err)
		return
	}

	plan, err := s.service.Plan(r.Context(), req)
	if err != nil {
		respondRunError(w, r, err)
		return
	}

	details := make([]string, len(plan.Mappings))
	for i, m := range plan.Mappings {
		null := "NOT NULL"
		if m.Nullable {
			null = "NULL"
		}
		details[i] = fmt.Sprintf("%s <- %s %s %s", m.TargetColumn, m.CSVColumn, m.TargetType, null)
	}
	writeJSON(w, RunResponse{
		Status:  "valid",
		Message: "Mapping is valid for " + plan.Table.String(),
		Details: details,
	})
}

// handleLoadStatus reports load slot usage.
func (s *Server) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	limiter := s.service.Limiter()
	if limiter == nil {
		writeJSON(w, map[string]any{"limited": false})
		return
	}
	writeJSON(w, limiter.Status())
}
