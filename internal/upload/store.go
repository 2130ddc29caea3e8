// Package upload keeps uploaded CSV files on local disk until they are
// loaded. Files are stored as <uuid>.csv; the id is the only handle
// callers get back.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvload/internal/core"
	"github.com/JonMunkholm/csvload/internal/metrics"
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrNotCSV       = errors.New("only .csv files are supported")
)

// Defaults used when Config leaves a field zero.
const (
	DefaultMaxBytes    = 20 << 20
	DefaultPreviewRows = 10
)

// Config configures a Store.
type Config struct {
	Dir         string
	MaxBytes    int64
	PreviewRows int
	// CountRows reads the whole file after saving to report TotalRows.
	CountRows bool
	Logger    *slog.Logger
}

// Info describes a saved upload.
type Info struct {
	FileID      string              `json:"file_id"`
	Filename    string              `json:"filename"`
	Columns     []string            `json:"columns"`
	PreviewRows []map[string]string `json:"preview_rows"`
	TotalRows   *int                `json:"total_rows,omitempty"`
	Bytes       int64               `json:"bytes"`
}

// Store saves uploads under a directory. It implements core.UploadSource.
type Store struct {
	cfg Config
}

// New creates the upload directory if needed.
func New(cfg Config) (*Store, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.PreviewRows < 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{cfg: cfg}, nil
}

// MaxBytes returns the upload size limit.
func (s *Store) MaxBytes() int64 { return s.cfg.MaxBytes }

// Save stores r as a new upload and returns its header and a preview.
// filename is only used for the extension check and echoed back.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (Info, error) {
	info, err := s.save(ctx, filename, r)
	outcome := "success"
	switch {
	case errors.Is(err, ErrFileTooLarge):
		outcome = "too_large"
	case errors.Is(err, ErrNotCSV), errors.Is(err, core.ErrNoHeader):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	metrics.ObserveUpload(outcome, info.Bytes)
	return info, err
}

func (s *Store) save(ctx context.Context, filename string, r io.Reader) (Info, error) {
	name := filepath.Base(filename)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return Info{}, ErrNotCSV
	}

	id := uuid.NewString()
	path := s.path(id)

	f, err := os.Create(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create file: %w", err)
	}

	// Read one byte past the limit to detect oversize input.
	counter := core.NewCountingReader(io.LimitReader(r, s.cfg.MaxBytes+1))
	_, copyErr := io.Copy(f, counter)
	closeErr := f.Close()

	fail := func(err error) (Info, error) {
		_ = os.Remove(path)
		return Info{}, err
	}
	switch {
	case copyErr != nil:
		return fail(fmt.Errorf("failed to save file: %w", copyErr))
	case closeErr != nil:
		return fail(fmt.Errorf("failed to save file: %w", closeErr))
	case counter.BytesRead > s.cfg.MaxBytes:
		return fail(fmt.Errorf("%w: limit is %d MB", ErrFileTooLarge, s.cfg.MaxBytes>>20))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	info, err := s.inspect(path)
	if err != nil {
		return fail(err)
	}
	info.FileID = id
	info.Filename = name
	info.Bytes = counter.BytesRead

	s.cfg.Logger.Info("upload saved", "file_id", id, "filename", name, "bytes", info.Bytes, "columns", len(info.Columns))
	return info, nil
}

// inspect reads the header, the preview rows and optionally counts records.
func (s *Store) inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	chunkSize := s.cfg.PreviewRows
	if chunkSize < 1 {
		chunkSize = 1
	}
	chunks, err := core.NewChunkReader(f, chunkSize)
	if err != nil {
		return Info{}, err
	}
	header := chunks.Header()

	info := Info{Columns: header, PreviewRows: []map[string]string{}}
	total := 0
	for {
		recs, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Info{}, err
		}
		for _, rec := range recs {
			if len(info.PreviewRows) < s.cfg.PreviewRows {
				info.PreviewRows = append(info.PreviewRows, previewRow(header, rec.Fields))
			}
		}
		total += len(recs)
		if !s.cfg.CountRows && len(info.PreviewRows) >= s.cfg.PreviewRows {
			break
		}
	}
	if s.cfg.CountRows {
		info.TotalRows = &total
	}
	return info, nil
}

// previewRow keys fields by header name. The first of repeated names wins.
func previewRow(header, fields []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, h := range header {
		if _, ok := row[h]; ok {
			continue
		}
		if i < len(fields) {
			row[h] = fields[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

// Path implements core.UploadSource.
func (s *Store) Path(fileID string) (string, error) {
	id, err := uuid.Parse(fileID)
	if err != nil {
		return "", core.ErrFileNotFound
	}
	path := s.path(id.String())
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", core.ErrFileNotFound
		}
		return "", fmt.Errorf("stat upload: %w", err)
	}
	return path, nil
}

// Remove implements core.UploadSource. Removing a missing upload is not an
// error.
func (s *Store) Remove(fileID string) error {
	id, err := uuid.Parse(fileID)
	if err != nil {
		return core.ErrFileNotFound
	}
	if err := os.Remove(s.path(id.String())); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.cfg.Dir, id+".csv")
}
