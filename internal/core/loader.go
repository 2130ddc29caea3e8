package core

// loader.go moves a validated CSV file into a table inside one transaction.
//
// A load either commits every row or rolls back everything, including a
// table it created. Chunks are processed strictly in order:
//
//	Opened -> TableChecked | TableCreated -> ChunkProcessing* -> Committed | RolledBack
//
// Conversion failures are collected per chunk (capped at MaxErrors) and
// abort the load after the chunk is read. Store failures abort immediately.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

const (
	DefaultChunkSize = 2000
	DefaultMaxErrors = 10
)

// ErrLoaderUsed is returned when Load is called a second time on a Loader.
var ErrLoaderUsed = errors.New("loader already used")

// RowError is one cell or record that could not be converted.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("Row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// ConversionError aggregates the row errors that aborted a load.
type ConversionError struct {
	Rows []RowError
}

func (e *ConversionError) Error() string {
	return "conversion failed: " + strings.Join(e.Messages(), "; ")
}

// Messages returns "Row <n>: <cause>" for each collected error.
func (e *ConversionError) Messages() []string {
	out := make([]string, len(e.Rows))
	for i, r := range e.Rows {
		out[i] = r.Error()
	}
	return out
}

// StoreError wraps a failure reported by the store. The load was rolled
// back before it was returned.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// LoaderConfig configures a Loader. Zero values take the defaults.
type LoaderConfig struct {
	ChunkSize int
	MaxErrors int
	Logger    *slog.Logger
}

func (c LoaderConfig) withDefaults() LoaderConfig {
	if c.ChunkSize < 1 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxErrors < 1 {
		c.MaxErrors = DefaultMaxErrors
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// LoadState is a step of a load attempt.
type LoadState string

const (
	StateNew             LoadState = "new"
	StateOpened          LoadState = "opened"
	StateTableChecked    LoadState = "table_checked"
	StateTableCreated    LoadState = "table_created"
	StateChunkProcessing LoadState = "chunk_processing"
	StateCommitted       LoadState = "committed"
	StateRolledBack      LoadState = "rolled_back"
)

// Loader performs a single load attempt.
type Loader struct {
	store Store
	cfg   LoaderConfig

	used  atomic.Bool
	state atomic.Value // LoadState
}

// NewLoader creates a loader for one load against store.
func NewLoader(store Store, cfg LoaderConfig) *Loader {
	l := &Loader{store: store, cfg: cfg.withDefaults()}
	l.state.Store(StateNew)
	return l
}

// State returns the current state of the load attempt.
func (l *Loader) State() LoadState {
	return l.state.Load().(LoadState)
}

func (l *Loader) setState(s LoadState, args ...any) {
	l.state.Store(s)
	l.cfg.Logger.Debug("load state", append([]any{"state", string(s)}, args...)...)
}

// Load reads filePath and writes the mapped columns into table.
//
// It returns *ValidationError before touching the store when the mappings
// do not fit the file, *ConversionError when cells fail to cast, and
// *StoreError when the store rejects an operation.
func (l *Loader) Load(ctx context.Context, filePath string, table QualifiedName, mappings []MappingEntry) (LoadResult, error) {
	if !l.used.CompareAndSwap(false, true) {
		return LoadResult{}, ErrLoaderUsed
	}
	start := time.Now()
	log := l.cfg.Logger.With("table", table.String())

	if err := checkEntries(table, mappings); err != nil {
		return LoadResult{}, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return LoadResult{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	chunks, err := NewChunkReader(f, l.cfg.ChunkSize)
	if err != nil {
		return LoadResult{}, err
	}
	positions, err := ResolveColumns(chunks.Header(), mappings)
	if err != nil {
		return LoadResult{}, err
	}

	columns := make([]Identifier, len(mappings))
	for i, m := range mappings {
		columns[i] = m.TargetColumn
	}

	tx, err := l.store.Begin(ctx)
	if err != nil {
		return LoadResult{}, &StoreError{Op: "begin transaction", Err: err}
	}
	l.setState(StateOpened, "table", table.String())

	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback must run even if ctx is already done.
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil {
			log.Error("rollback failed", "error", rbErr)
		}
		l.setState(StateRolledBack)
	}()

	var result LoadResult

	exists, err := tx.TableExists(ctx, table)
	if err != nil {
		return LoadResult{}, &StoreError{Op: "check table", Err: err}
	}
	if exists {
		l.setState(StateTableChecked)
	} else {
		if err := tx.CreateTable(ctx, table, ColumnDefs(mappings)); err != nil {
			return LoadResult{}, &StoreError{Op: "create table", Err: err}
		}
		result.TableCreated = true
		l.setState(StateTableCreated)
	}

	for {
		records, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return LoadResult{}, fmt.Errorf("read csv: %w", err)
		}
		l.setState(StateChunkProcessing, "chunk", result.Chunks+1, "records", len(records))

		rows, convErr := l.convertChunk(records, positions, mappings)
		if convErr != nil {
			log.Warn("conversion failed", "chunk", result.Chunks+1, "errors", len(convErr.Rows))
			return LoadResult{}, convErr
		}

		n, err := tx.InsertRows(ctx, table, columns, rows)
		if err != nil {
			return LoadResult{}, &StoreError{Op: "insert rows", Err: err}
		}
		result.RowsInserted += n
		result.Chunks++
	}

	if err := tx.Commit(ctx); err != nil {
		return LoadResult{}, &StoreError{Op: "commit", Err: err}
	}
	committed = true
	l.setState(StateCommitted)

	log.Info("load committed",
		"rows", result.RowsInserted,
		"chunks", result.Chunks,
		"table_created", result.TableCreated,
		"duration", time.Since(start),
	)
	return result, nil
}

// convertChunk casts every mapped cell of records. It stops early once
// MaxErrors errors are collected.
func (l *Loader) convertChunk(records []Record, positions []int, mappings []MappingEntry) ([][]any, *ConversionError) {
	rows := make([][]any, 0, len(records))
	var errs []RowError

	for _, rec := range records {
		if rec.Err != nil {
			errs = append(errs, RowError{Row: rec.Row, Err: rec.Err})
			if len(errs) >= l.cfg.MaxErrors {
				break
			}
			continue
		}

		row := make([]any, len(mappings))
		for i, m := range mappings {
			v, err := Cast(rec.Fields[positions[i]], m.TargetType, m.Nullable)
			if err != nil {
				errs = append(errs, RowError{Row: rec.Row, Err: fmt.Errorf("%s: %w", m.TargetColumn, err)})
				if len(errs) >= l.cfg.MaxErrors {
					break
				}
				continue
			}
			row[i] = v
		}
		if len(errs) >= l.cfg.MaxErrors {
			break
		}
		if len(errs) == 0 {
			rows = append(rows, row)
		}
	}

	if len(errs) > 0 {
		return nil, &ConversionError{Rows: errs}
	}
	return rows, nil
}

// checkEntries rejects mappings that did not come from ValidateMappings.
func checkEntries(table QualifiedName, mappings []MappingEntry) error {
	var verr ValidationError
	if table.IsZero() {
		verr.add(IssueInvalidTable, "", "table name is required")
	}
	if len(mappings) == 0 {
		verr.add(IssueNoMappings, "", "at least one mapping is required")
	}
	seen := make(map[string]bool, len(mappings))
	for i, m := range mappings {
		switch {
		case m.TargetColumn.IsZero():
			verr.add(IssueInvalidTargetColumn, "", fmt.Sprintf("mapping %d has no target column", i+1))
		case seen[m.TargetColumn.Key()]:
			verr.add(IssueDuplicateTargetColumn, m.TargetColumn.String(), fmt.Sprintf("Duplicate target column: %s", m.TargetColumn))
		default:
			seen[m.TargetColumn.Key()] = true
		}
		if m.TargetType.IsZero() {
			verr.add(IssueUnsupportedTargetType, m.TargetColumn.String(), fmt.Sprintf("mapping %d has no target type", i+1))
		}
	}
	if verr.HasIssues() {
		return &verr
	}
	return nil
}
