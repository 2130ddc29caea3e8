package core

import (
	"context"
	"fmt"
)

// Store opens transactions against the relational target.
// Implementations live in internal/store.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// Dialect names the backend, e.g. "sqlserver".
	Dialect() string
}

// Tx is a single all-or-nothing unit of work. Implementations build SQL
// only from Identifier values and TypeDescriptor.String().
type Tx interface {
	TableExists(ctx context.Context, table QualifiedName) (bool, error)
	// CreateTable creates table with every column NULL-able.
	CreateTable(ctx context.Context, table QualifiedName, columns []ColumnDef) error
	// InsertRows inserts one chunk in a single round trip and returns the
	// number of rows written.
	InsertRows(ctx context.Context, table QualifiedName, columns []Identifier, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ColumnDef is a column in a generated CREATE TABLE.
type ColumnDef struct {
	Name Identifier
	Type TypeDescriptor
}

// ColumnInput is an unvalidated column description, as read from a schema
// file or request body.
type ColumnInput struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

// ColumnSpec is a validated column of a TableSchema.
type ColumnSpec struct {
	Name     Identifier
	Type     TypeDescriptor
	Nullable bool
}

// TableSchema is a validated target table description.
type TableSchema struct {
	Table   QualifiedName
	Columns []ColumnSpec

	inline bool
}

// Inline reports whether the schema was supplied by the caller rather than
// resolved from the schema repository.
func (s *TableSchema) Inline() bool { return s.inline }

// Column looks up a column by name, case-insensitively.
func (s *TableSchema) Column(name Identifier) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.Name.EqualFold(name) {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// NewTableSchema validates a schema resolved from the schema repository.
// Every problem is collected into the returned *ValidationError.
func NewTableSchema(table string, columns []ColumnInput) (TableSchema, error) {
	return buildSchema(table, columns, false)
}

// NewInlineSchema validates a schema supplied directly by the caller.
func NewInlineSchema(table string, columns []ColumnInput) (TableSchema, error) {
	return buildSchema(table, columns, true)
}

func buildSchema(table string, columns []ColumnInput, inline bool) (TableSchema, error) {
	var verr ValidationError

	qn, err := ValidateQualifiedTable(table)
	if err != nil {
		verr.add(IssueInvalidTable, table, err.Error())
	}
	if len(columns) == 0 {
		verr.add(IssueNoColumns, "", "schema must define at least one column")
	}

	seen := make(map[string]bool, len(columns))
	specs := make([]ColumnSpec, 0, len(columns))
	for i, c := range columns {
		name, err := ValidateIdentifier(c.Name)
		if err != nil {
			verr.add(IssueInvalidColumnName, c.Name, fmt.Sprintf("column %d: invalid column name %q", i+1, c.Name))
			continue
		}
		if seen[name.Key()] {
			verr.add(IssueDuplicateColumn, name.String(), fmt.Sprintf("duplicate column: %s", name))
			continue
		}
		seen[name.Key()] = true

		typ, err := ParseType(c.Type)
		if err != nil {
			verr.add(IssueUnsupportedColumnType, name.String(), fmt.Sprintf("unsupported type for %s: %q", name, c.Type))
			continue
		}
		specs = append(specs, ColumnSpec{Name: name, Type: typ, Nullable: c.Nullable})
	}

	if verr.HasIssues() {
		return TableSchema{}, &verr
	}
	return TableSchema{Table: qn, Columns: specs, inline: inline}, nil
}

// MappingRequest is one raw CSV-column to target-column mapping.
type MappingRequest struct {
	TargetColumn string `json:"target_col"`
	CSVColumn    string `json:"csv_col"`
	TargetType   string `json:"target_type"`
}

// MappingEntry is a validated mapping. Only ValidateMappings produces them.
type MappingEntry struct {
	TargetColumn Identifier
	CSVColumn    string
	TargetType   TypeDescriptor
	Nullable     bool
}

// LoadResult describes a committed load.
type LoadResult struct {
	RowsInserted int64
	TableCreated bool
	Chunks       int
}
