package web

// errors.go turns errors into JSON responses.
//
// Every failure is logged server-side with the technical error and the
// request ID, then answered with the message from core.MapError. Load
// failures use the run envelope instead, so a client always sees
// {status, message, details}.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/csvload/internal/core"
	"github.com/JonMunkholm/csvload/internal/logging"
	"github.com/JonMunkholm/csvload/internal/schema"
	"github.com/JonMunkholm/csvload/internal/upload"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errBadJSON     = errors.New("request body is not valid JSON")
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// RunResponse is the body of /api/upload/run and /api/upload/validate.
type RunResponse struct {
	Status       string   `json:"status"`
	RowsInserted *int64   `json:"rows_inserted,omitempty"`
	TableCreated bool     `json:"table_created,omitempty"`
	Message      string   `json:"message,omitempty"`
	Code         string   `json:"code,omitempty"`
	Details      []string `json:"details,omitempty"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var ferr *schema.FileError
	switch {
	case errors.As(err, &ferr):
		return http.StatusInternalServerError
	case errors.Is(err, upload.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrNotCSV), errors.Is(err, errBadJSON):
		return http.StatusBadRequest
	}

	switch core.Outcome(err) {
	case core.OutcomeValidationError, core.OutcomeConversionError:
		return http.StatusBadRequest
	case core.OutcomeNotFound:
		return http.StatusNotFound
	case core.OutcomeBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)
	logError(r, err, statusCode, userMsg.Code)

	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// respondRunError writes a load failure in the run envelope.
func respondRunError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)
	logError(r, err, status, userMsg.Code)

	resp := RunResponse{Status: "error", Code: userMsg.Code}

	var (
		verr     *core.ValidationError
		convErr  *core.ConversionError
		storeErr *core.StoreError
		ferr     *schema.FileError
	)
	switch {
	case errors.As(err, &verr):
		resp.Message = "Validation failed"
		resp.Details = verr.Messages()
	case errors.As(err, &convErr):
		resp.Message = "Conversion failed"
		resp.Details = convErr.Messages()
	case errors.As(err, &storeErr):
		resp.Message = "Insert failed"
		resp.Details = []string{core.FormatUserError(err)}
	case errors.As(err, &ferr):
		resp.Message = "Schema file is invalid"
		resp.Details = ferr.Details()
	default:
		resp.Message = userMsg.Message
		if userMsg.Action != "" {
			resp.Details = []string{userMsg.Action}
		}
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, status, resp)
}

func logError(r *http.Request, err error, status int, code string) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
	)
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are logged since
// headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
