package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvload/internal/metrics"
)

var (
	// ErrFileNotFound is returned by an UploadSource for an unknown file id.
	ErrFileNotFound = errors.New("file_id not found")

	// ErrSchemaNotFound is returned by a SchemaResolver for an unknown name.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrInvalidSchemaName is returned for schema names that are not plain
	// file names with a supported extension.
	ErrInvalidSchemaName = errors.New("invalid schema name")
)

// SchemaResolver resolves a named schema.
type SchemaResolver interface {
	Resolve(ctx context.Context, name string) (TableSchema, error)
}

// UploadSource locates uploaded files.
type UploadSource interface {
	// Path returns the local path of an upload, or ErrFileNotFound.
	Path(fileID string) (string, error)
	Remove(fileID string) error
}

// InlineSchema is a schema supplied with the request.
type InlineSchema struct {
	Table   string        `json:"table"`
	Columns []ColumnInput `json:"columns"`
}

// RunRequest asks for one uploaded file to be loaded. Exactly one of
// SchemaName, Schema or Table selects the target.
type RunRequest struct {
	FileID     string           `json:"file_id"`
	SchemaName string           `json:"schema_name,omitempty"`
	Schema     *InlineSchema    `json:"schema,omitempty"`
	Table      string           `json:"table,omitempty"`
	Mappings   []MappingRequest `json:"mappings"`
	ChunkSize  int              `json:"chunk_size,omitempty"`
}

// Plan is a validated RunRequest.
type Plan struct {
	FileID   string
	FilePath string
	Table    QualifiedName
	Schema   *TableSchema
	Mappings []MappingEntry
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Loader LoaderConfig
	// LoadTimeout bounds a load when positive. Loads are otherwise not
	// cancelled, even if the caller goes away.
	LoadTimeout time.Duration
	// KeepFiles leaves uploads in place after a successful load.
	KeepFiles bool
	Logger    *slog.Logger
}

// Service runs loads of uploaded files.
type Service struct {
	store   Store
	schemas SchemaResolver
	uploads UploadSource
	limiter *LoadLimiter
	cfg     ServiceConfig
}

// NewService wires a Service. limiter may be nil for no limit.
func NewService(store Store, schemas SchemaResolver, uploads UploadSource, limiter *LoadLimiter, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:   store,
		schemas: schemas,
		uploads: uploads,
		limiter: limiter,
		cfg:     cfg,
	}
}

// Limiter returns the service's load limiter, which may be nil.
func (s *Service) Limiter() *LoadLimiter { return s.limiter }

// Plan resolves and validates req without touching the store.
func (s *Service) Plan(ctx context.Context, req RunRequest) (Plan, error) {
	path, err := s.uploads.Path(req.FileID)
	if err != nil {
		return Plan{}, err
	}

	schema, table, err := s.resolveTarget(ctx, req)
	if err != nil {
		return Plan{}, err
	}

	header, err := readFileHeader(path)
	if err != nil {
		return Plan{}, err
	}

	entries, err := ValidateMappings(schema, header, req.Mappings)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		FileID:   req.FileID,
		FilePath: path,
		Table:    table,
		Schema:   schema,
		Mappings: entries,
	}, nil
}

// Run validates req and loads the file. The upload is removed after a
// successful load.
func (s *Service) Run(ctx context.Context, req RunRequest) (LoadResult, error) {
	start := time.Now()
	loadID := uuid.NewString()
	ctx = ContextWithLoadID(ctx, loadID)
	ip, _ := ClientFromContext(ctx)
	log := s.cfg.Logger.With("load_id", loadID, "file_id", req.FileID)
	if ip != "" {
		log = log.With("client_ip", ip)
	}

	plan, err := s.Plan(ctx, req)
	if err != nil {
		s.observe(log, err, LoadResult{}, start)
		return LoadResult{}, err
	}
	log = log.With("table", plan.Table.String())

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			s.observe(log, err, LoadResult{}, start)
			return LoadResult{}, err
		}
		defer s.limiter.Release()
	}
	metrics.ActiveLoads.Inc()
	defer metrics.ActiveLoads.Dec()

	loadCtx := context.WithoutCancel(ctx)
	if s.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(loadCtx, s.cfg.LoadTimeout)
		defer cancel()
	}

	lcfg := s.cfg.Loader
	if req.ChunkSize > 0 {
		lcfg.ChunkSize = req.ChunkSize
	}
	lcfg.Logger = log

	result, err := NewLoader(s.store, lcfg).Load(loadCtx, plan.FilePath, plan.Table, plan.Mappings)
	s.observe(log, err, result, start)
	if err != nil {
		return LoadResult{}, err
	}

	if !s.cfg.KeepFiles {
		if err := s.uploads.Remove(req.FileID); err != nil {
			log.Warn("remove upload failed", "error", err)
		}
	}
	return result, nil
}

func (s *Service) resolveTarget(ctx context.Context, req RunRequest) (*TableSchema, QualifiedName, error) {
	selected := 0
	for _, set := range []bool{req.SchemaName != "", req.Schema != nil, req.Table != ""} {
		if set {
			selected++
		}
	}
	if selected != 1 {
		verr := &ValidationError{}
		verr.add(IssueInvalidTable, "", "provide exactly one of schema_name, schema or table")
		return nil, QualifiedName{}, verr
	}

	switch {
	case req.SchemaName != "":
		schema, err := s.schemas.Resolve(ctx, req.SchemaName)
		if err != nil {
			return nil, QualifiedName{}, err
		}
		return &schema, schema.Table, nil

	case req.Schema != nil:
		schema, err := NewInlineSchema(req.Schema.Table, req.Schema.Columns)
		if err != nil {
			return nil, QualifiedName{}, err
		}
		return &schema, schema.Table, nil

	default:
		table, err := ValidateQualifiedTable(req.Table)
		if err != nil {
			verr := &ValidationError{}
			verr.add(IssueInvalidTable, req.Table, err.Error())
			return nil, QualifiedName{}, verr
		}
		return nil, table, nil
	}
}

// observe logs the outcome of a run and records metrics.
func (s *Service) observe(log *slog.Logger, err error, result LoadResult, start time.Time) {
	outcome := Outcome(err)
	metrics.ObserveLoad(outcome, result.RowsInserted, time.Since(start))

	var convErr *ConversionError
	switch {
	case err == nil:
		log.Info("load finished", "rows", result.RowsInserted, "duration", time.Since(start))
	case errors.As(err, &convErr):
		metrics.ConversionErrors.Add(float64(len(convErr.Rows)))
		log.Warn("load rejected", "outcome", outcome, "error", err)
	case outcome == OutcomeStoreError || outcome == OutcomeError:
		log.Error("load failed", "outcome", outcome, "error", err)
	default:
		log.Warn("load rejected", "outcome", outcome, "error", err)
	}
}

// Load outcomes, used as metric labels.
const (
	OutcomeSuccess         = "success"
	OutcomeValidationError = "validation_error"
	OutcomeConversionError = "conversion_error"
	OutcomeStoreError      = "store_error"
	OutcomeNotFound        = "not_found"
	OutcomeBusy            = "busy"
	OutcomeError           = "error"
)

// Outcome classifies the result of a run.
func Outcome(err error) string {
	var (
		verr     *ValidationError
		convErr  *ConversionError
		storeErr *StoreError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &verr),
		errors.Is(err, ErrInvalidTableName),
		errors.Is(err, ErrInvalidIdentifier),
		errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrInvalidSchemaName),
		errors.Is(err, ErrNoHeader):
		return OutcomeValidationError
	case errors.As(err, &convErr):
		return OutcomeConversionError
	case errors.As(err, &storeErr):
		return OutcomeStoreError
	case errors.Is(err, ErrFileNotFound), errors.Is(err, ErrSchemaNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrTooManyLoads):
		return OutcomeBusy
	default:
		return OutcomeError
	}
}

func readFileHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadHeader(f)
}
