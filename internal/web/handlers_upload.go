package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/csvload/internal/upload"
)

// multipartOverhead is the room allowed for multipart headers and
// boundaries on top of the file size limit.
const multipartOverhead = 64 << 10

// handleCSVUpload stores the multipart "file" part and returns its columns
// and preview rows. The part is streamed straight to disk.
func (s *Server) handleCSVUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxBytes()+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: expected multipart/form-data", upload.ErrNotCSV), http.StatusBadRequest)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			respondError(w, r, errors.New("no file provided: missing form field \"file\""), http.StatusBadRequest)
			return
		}
		if err != nil {
			s.respondUploadError(w, r, err)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		info, err := s.uploads.Save(r.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			s.respondUploadError(w, r, err)
			return
		}
		writeJSON(w, info)
		return
	}
}

func (s *Server) respondUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		err = fmt.Errorf("%w: %v", upload.ErrFileTooLarge, err)
	}
	respondError(w, r, err, statusFor(err))
}
