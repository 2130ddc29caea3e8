package core

// validation.go checks a proposed CSV-column to target-column mapping
// against the resolved schema and the actual CSV header.
//
// Every rule is applied to every entry and all problems are returned
// together in a *ValidationError, so a caller can fix the whole request in
// one pass. Nothing here touches the store.

import (
	"fmt"
	"strings"
)

// IssueKind classifies a validation problem.
type IssueKind string

const (
	IssueInvalidTargetColumn    IssueKind = "invalid_target_column"
	IssueDuplicateTargetColumn  IssueKind = "duplicate_target_column"
	IssueUnsupportedTargetType  IssueKind = "unsupported_target_type"
	IssueMissingCSVColumn       IssueKind = "missing_csv_column"
	IssueCSVColumnNotFound      IssueKind = "csv_column_not_found"
	IssueUnknownTargetColumn    IssueKind = "unknown_target_column"
	IssueRequiredColumnUnmapped IssueKind = "required_column_unmapped"
	IssueNoMappings             IssueKind = "no_mappings"

	IssueInvalidTable          IssueKind = "invalid_table"
	IssueNoColumns             IssueKind = "no_columns"
	IssueInvalidColumnName     IssueKind = "invalid_column_name"
	IssueDuplicateColumn       IssueKind = "duplicate_column"
	IssueUnsupportedColumnType IssueKind = "unsupported_column_type"
)

// Issue is a single validation problem.
type Issue struct {
	Kind    IssueKind
	Column  string // Column the issue is about, if any
	Message string // Human-readable message
}

func (i Issue) String() string { return i.Message }

// ValidationError aggregates every problem found in a request.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

// Messages returns the issue messages in the order they were found.
func (e *ValidationError) Messages() []string {
	out := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		out[i] = issue.Message
	}
	return out
}

// HasIssues reports whether any problem was recorded.
func (e *ValidationError) HasIssues() bool { return len(e.Issues) > 0 }

// Has reports whether an issue of the given kind was recorded.
func (e *ValidationError) Has(kind IssueKind) bool {
	for _, issue := range e.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(kind IssueKind, column, msg string) {
	e.Issues = append(e.Issues, Issue{Kind: kind, Column: column, Message: msg})
}

// ValidateMappings validates requests against schema and the CSV header.
//
// With a nil schema the mapping defines the table on its own and every
// mapped column is nullable. With a schema, targets must be schema columns
// and take the column's nullability; a schema resolved from the repository
// must also have every non-nullable column mapped. Inline schemas skip that
// completeness rule.
func ValidateMappings(schema *TableSchema, csvColumns []string, requests []MappingRequest) ([]MappingEntry, error) {
	var verr ValidationError

	if len(requests) == 0 {
		verr.add(IssueNoMappings, "", "at least one mapping is required")
	}

	header := make(map[string]bool, len(csvColumns))
	for _, c := range csvColumns {
		header[c] = true
	}

	seen := make(map[string]bool, len(requests))
	mapped := make(map[string]bool, len(requests))
	entries := make([]MappingEntry, 0, len(requests))

	for _, req := range requests {
		ok := true

		target, err := ValidateIdentifier(req.TargetColumn)
		if err != nil {
			verr.add(IssueInvalidTargetColumn, req.TargetColumn, fmt.Sprintf("Invalid target column: %q", req.TargetColumn))
			ok = false
		} else if seen[target.Key()] {
			verr.add(IssueDuplicateTargetColumn, target.String(), fmt.Sprintf("Duplicate target column: %s", target))
			ok = false
		} else {
			seen[target.Key()] = true
		}

		typ, err := ParseType(req.TargetType)
		if err != nil {
			verr.add(IssueUnsupportedTargetType, req.TargetColumn, fmt.Sprintf("Unsupported type for %s: %q", req.TargetColumn, req.TargetType))
			ok = false
		}

		switch {
		case req.CSVColumn == "":
			verr.add(IssueMissingCSVColumn, req.TargetColumn, fmt.Sprintf("CSV column is required for target %s", req.TargetColumn))
			ok = false
		case !header[req.CSVColumn]:
			verr.add(IssueCSVColumnNotFound, req.CSVColumn, fmt.Sprintf("CSV column not found: %s", req.CSVColumn))
			ok = false
		}

		nullable := true
		if schema != nil && !target.IsZero() {
			col, found := schema.Column(target)
			if !found {
				verr.add(IssueUnknownTargetColumn, target.String(), fmt.Sprintf("Unknown target column: %s", target))
				ok = false
			} else {
				// Use the schema's spelling so generated SQL matches it.
				target = col.Name
				nullable = col.Nullable
			}
		}

		if ok {
			mapped[target.Key()] = true
			entries = append(entries, MappingEntry{
				TargetColumn: target,
				CSVColumn:    req.CSVColumn,
				TargetType:   typ,
				Nullable:     nullable,
			})
		}
	}

	if schema != nil && !schema.Inline() {
		for _, col := range schema.Columns {
			if !col.Nullable && !mapped[col.Name.Key()] {
				verr.add(IssueRequiredColumnUnmapped, col.Name.String(), fmt.Sprintf("Non-nullable target column not mapped: %s", col.Name))
			}
		}
	}

	if verr.HasIssues() {
		return nil, &verr
	}
	return entries, nil
}

// ColumnDefs derives CREATE TABLE columns from validated mappings.
func ColumnDefs(entries []MappingEntry) []ColumnDef {
	defs := make([]ColumnDef, len(entries))
	for i, e := range entries {
		defs[i] = ColumnDef{Name: e.TargetColumn, Type: e.TargetType}
	}
	return defs
}

// ResolveColumns maps each entry's CSV column to its index in header.
// The first occurrence wins when header repeats a name.
func ResolveColumns(header []string, entries []MappingEntry) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i := len(header) - 1; i >= 0; i-- {
		pos[header[i]] = i
	}

	var verr ValidationError
	idx := make([]int, len(entries))
	for i, e := range entries {
		p, ok := pos[e.CSVColumn]
		if !ok {
			verr.add(IssueCSVColumnNotFound, e.CSVColumn, fmt.Sprintf("CSV column not found: %s", e.CSVColumn))
			continue
		}
		idx[i] = p
	}
	if verr.HasIssues() {
		return nil, &verr
	}
	return idx, nil
}
