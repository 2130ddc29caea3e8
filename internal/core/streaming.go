package core

// streaming.go reads CSV files in bounded memory.
//
//   - WrapForStreaming strips a UTF-8 BOM and replaces invalid UTF-8 with
//     U+FFFD before the CSV parser sees the bytes
//   - CountingReader tracks bytes read
//   - ChunkReader yields fixed-size batches of records with row numbers
//
// Row numbers count the header as row 1, so the first data record is row 2.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
)

// ErrNoHeader is returned when a CSV file has no header record.
var ErrNoHeader = errors.New("CSV file has no header row")

// WrapForStreaming returns a reader that strips a leading UTF-8 BOM and
// repairs invalid UTF-8.
func WrapForStreaming(r io.Reader) io.Reader {
	return unicode.UTF8BOM.NewDecoder().Reader(r)
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader creates a counting reader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(WrapForStreaming(r))
	// 0 means every record must match the header's field count.
	cr.FieldsPerRecord = 0
	return cr
}

// ReadHeader reads the first record of a CSV stream.
func ReadHeader(r io.Reader) ([]string, error) {
	header, err := newCSVReader(r).Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return header, nil
}

// Record is one CSV data record. Err is set when the record is malformed,
// for example when it has the wrong number of fields.
type Record struct {
	Row    int
	Fields []string
	Err    error
}

// ChunkReader reads a CSV stream in batches of at most size records.
type ChunkReader struct {
	r      *csv.Reader
	size   int
	header []string
	row    int
}

// NewChunkReader reads the header and prepares to stream the body.
func NewChunkReader(r io.Reader, size int) (*ChunkReader, error) {
	if size < 1 {
		size = DefaultChunkSize
	}
	cr := newCSVReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &ChunkReader{r: cr, size: size, header: header, row: 1}, nil
}

// Header returns the header record.
func (c *ChunkReader) Header() []string { return c.header }

// Next returns the next batch of records. It returns io.EOF, with no
// records, once the stream is exhausted.
func (c *ChunkReader) Next() ([]Record, error) {
	var out []Record
	for len(out) < c.size {
		fields, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		c.row++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return out, fmt.Errorf("read row %d: %w", c.row, err)
			}
			out = append(out, Record{Row: c.row, Fields: fields, Err: describeParseError(perr, len(c.header), len(fields))})
			continue
		}
		out = append(out, Record{Row: c.row, Fields: fields})
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

func describeParseError(perr *csv.ParseError, want, got int) error {
	if errors.Is(perr.Err, csv.ErrFieldCount) {
		return fmt.Errorf("expected %d fields, got %d", want, got)
	}
	return fmt.Errorf("malformed CSV: %v", perr.Err)
}
