package core

import (
	"errors"
	"strings"
	"testing"
)

func peopleSchema(t *testing.T) *TableSchema {
	t.Helper()
	s, err := NewTableSchema("dbo.People", []ColumnInput{
		{Name: "age", Type: "INT", Nullable: false},
		{Name: "Name", Type: "NVARCHAR(50)", Nullable: true},
		{Name: "joined", Type: "DATE", Nullable: true},
	})
	if err != nil {
		t.Fatalf("NewTableSchema() error = %v", err)
	}
	return &s
}

func TestValidateMappings_Valid(t *testing.T) {
	entries, err := ValidateMappings(peopleSchema(t), []string{"Age", "Full Name"}, []MappingRequest{
		{TargetColumn: "AGE", CSVColumn: "Age", TargetType: "int"},
		{TargetColumn: "[name]", CSVColumn: "Full Name", TargetType: "nvarchar(50)"},
	})
	if err != nil {
		t.Fatalf("ValidateMappings() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	// Schema spelling and nullability win.
	if entries[0].TargetColumn.String() != "age" || entries[0].Nullable {
		t.Errorf("entries[0] = %+v, want target age, not nullable", entries[0])
	}
	if entries[1].TargetColumn.String() != "Name" || !entries[1].Nullable {
		t.Errorf("entries[1] = %+v, want target Name, nullable", entries[1])
	}
	if entries[1].TargetType.String() != "NVARCHAR(50)" {
		t.Errorf("entries[1].TargetType = %s, want NVARCHAR(50)", entries[1].TargetType)
	}
}

func TestValidateMappings_NoSchema(t *testing.T) {
	entries, err := ValidateMappings(nil, []string{"a", "b"}, []MappingRequest{
		{TargetColumn: "x", CSVColumn: "a", TargetType: "INT"},
	})
	if err != nil {
		t.Fatalf("ValidateMappings() error = %v", err)
	}
	if !entries[0].Nullable {
		t.Error("mapping without schema should be nullable")
	}
}

func TestValidateMappings_RequiredUnmapped(t *testing.T) {
	_, err := ValidateMappings(peopleSchema(t), []string{"Age", "Name"}, []MappingRequest{
		{TargetColumn: "Name", CSVColumn: "Name", TargetType: "NVARCHAR(50)"},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if !verr.Has(IssueRequiredColumnUnmapped) {
		t.Errorf("issues = %v, want required_column_unmapped", verr.Messages())
	}
	if len(verr.Issues) != 1 || verr.Issues[0].Column != "age" {
		t.Errorf("issues = %+v, want one issue naming age", verr.Issues)
	}
	if !strings.Contains(err.Error(), "age") {
		t.Errorf("Error() = %q, want it to name age", err.Error())
	}
}

// A required column only counts as mapped when its entry validates.
func TestValidateMappings_RejectedEntryLeavesColumnUnmapped(t *testing.T) {
	tests := []struct {
		name     string
		req      MappingRequest
		wantKind IssueKind
	}{
		{"csv column not found", MappingRequest{TargetColumn: "age", CSVColumn: "Missing", TargetType: "INT"}, IssueCSVColumnNotFound},
		{"csv column empty", MappingRequest{TargetColumn: "age", CSVColumn: "", TargetType: "INT"}, IssueMissingCSVColumn},
		{"unsupported type", MappingRequest{TargetColumn: "age", CSVColumn: "Age", TargetType: "MONEY"}, IssueUnsupportedTargetType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateMappings(peopleSchema(t), []string{"Age"}, []MappingRequest{tt.req})

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if !verr.Has(tt.wantKind) {
				t.Errorf("issues = %v, want %s", verr.Messages(), tt.wantKind)
			}
			if !verr.Has(IssueRequiredColumnUnmapped) {
				t.Errorf("issues = %v, want required_column_unmapped", verr.Messages())
			}
		})
	}
}

func TestValidateMappings_InlineSchemaSkipsCompleteness(t *testing.T) {
	s, err := NewInlineSchema("dbo.People", []ColumnInput{
		{Name: "age", Type: "INT", Nullable: false},
		{Name: "name", Type: "VARCHAR(20)", Nullable: true},
	})
	if err != nil {
		t.Fatalf("NewInlineSchema() error = %v", err)
	}
	if !s.Inline() {
		t.Fatal("Inline() = false")
	}

	if _, err := ValidateMappings(&s, []string{"n"}, []MappingRequest{
		{TargetColumn: "name", CSVColumn: "n", TargetType: "VARCHAR(20)"},
	}); err != nil {
		t.Errorf("ValidateMappings() error = %v, want nil", err)
	}
}

func TestValidateMappings_CollectsEveryIssue(t *testing.T) {
	reqs := []MappingRequest{
		{TargetColumn: "1bad", CSVColumn: "Age", TargetType: "INT"},
		{TargetColumn: "Name", CSVColumn: "", TargetType: "NVARCHAR(50)"},
		{TargetColumn: "name", CSVColumn: "Name", TargetType: "NVARCHAR(50)"},
		{TargetColumn: "joined", CSVColumn: "Missing", TargetType: "DATE"},
		{TargetColumn: "salary", CSVColumn: "Age", TargetType: "MONEY"},
	}
	_, err := ValidateMappings(peopleSchema(t), []string{"Age", "Name"}, reqs)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}

	want := []IssueKind{
		IssueInvalidTargetColumn,
		IssueMissingCSVColumn,
		IssueDuplicateTargetColumn,
		IssueCSVColumnNotFound,
		IssueUnsupportedTargetType,
		IssueUnknownTargetColumn,
		IssueRequiredColumnUnmapped,
	}
	for _, k := range want {
		if !verr.Has(k) {
			t.Errorf("missing issue %s in %v", k, verr.Messages())
		}
	}
}

func TestValidateMappings_Messages(t *testing.T) {
	tests := []struct {
		name string
		req  MappingRequest
		want string
	}{
		{"invalid target", MappingRequest{TargetColumn: "a b", CSVColumn: "c", TargetType: "INT"}, `Invalid target column: "a b"`},
		{"unsupported type", MappingRequest{TargetColumn: "x", CSVColumn: "c", TargetType: "VARCHAR(50); DROP TABLE x"}, `Unsupported type for x: "VARCHAR(50); DROP TABLE x"`},
		{"csv column missing", MappingRequest{TargetColumn: "x", CSVColumn: "nope", TargetType: "INT"}, "CSV column not found: nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateMappings(nil, []string{"c"}, []MappingRequest{tt.req})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			msgs := verr.Messages()
			if len(msgs) != 1 || msgs[0] != tt.want {
				t.Errorf("Messages() = %q, want [%q]", msgs, tt.want)
			}
		})
	}
}

func TestValidateMappings_Empty(t *testing.T) {
	_, err := ValidateMappings(nil, []string{"a"}, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Has(IssueNoMappings) {
		t.Errorf("error = %v, want no_mappings", err)
	}
}

// Header matching is exact: CSV headers are data, not identifiers.
func TestValidateMappings_HeaderIsCaseSensitive(t *testing.T) {
	_, err := ValidateMappings(nil, []string{"Age"}, []MappingRequest{
		{TargetColumn: "age", CSVColumn: "age", TargetType: "INT"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Has(IssueCSVColumnNotFound) {
		t.Errorf("error = %v, want csv_column_not_found", err)
	}
}

func TestNewTableSchema_Invalid(t *testing.T) {
	_, err := NewTableSchema("People", []ColumnInput{
		{Name: "ok", Type: "INT"},
		{Name: "OK", Type: "INT"},
		{Name: "bad name", Type: "INT"},
		{Name: "x", Type: "BLOB"},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	for _, k := range []IssueKind{IssueInvalidTable, IssueDuplicateColumn, IssueInvalidColumnName, IssueUnsupportedColumnType} {
		if !verr.Has(k) {
			t.Errorf("missing issue %s in %v", k, verr.Messages())
		}
	}

	_, err = NewTableSchema("dbo.Empty", nil)
	if !errors.As(err, &verr) || !verr.Has(IssueNoColumns) {
		t.Errorf("error = %v, want no_columns", err)
	}
}

func TestTableSchema_Column(t *testing.T) {
	s := peopleSchema(t)
	col, ok := s.Column(MustIdentifier("JOINED"))
	if !ok || col.Name.String() != "joined" {
		t.Errorf("Column(JOINED) = %+v, %v; want joined", col, ok)
	}
	if _, ok := s.Column(MustIdentifier("missing")); ok {
		t.Error("Column(missing) ok = true")
	}
}

func TestColumnDefs(t *testing.T) {
	entries, err := ValidateMappings(nil, []string{"a", "b"}, []MappingRequest{
		{TargetColumn: "A", CSVColumn: "a", TargetType: "decimal(9,3)"},
		{TargetColumn: "B", CSVColumn: "b", TargetType: "bit"},
	})
	if err != nil {
		t.Fatalf("ValidateMappings() error = %v", err)
	}
	defs := ColumnDefs(entries)
	if len(defs) != 2 || defs[0].Name.String() != "A" || defs[0].Type.String() != "DECIMAL(9,3)" || defs[1].Type.String() != "BIT" {
		t.Errorf("ColumnDefs() = %+v", defs)
	}
}

func TestResolveColumns(t *testing.T) {
	entries := []MappingEntry{
		{TargetColumn: MustIdentifier("x"), CSVColumn: "b"},
		{TargetColumn: MustIdentifier("y"), CSVColumn: "a"},
	}

	got, err := ResolveColumns([]string{"a", "b", "a"}, entries)
	if err != nil {
		t.Fatalf("ResolveColumns() error = %v", err)
	}
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("ResolveColumns() = %v, want [1 0]", got)
	}

	_, err = ResolveColumns([]string{"a"}, entries)
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Has(IssueCSVColumnNotFound) {
		t.Errorf("error = %v, want csv_column_not_found", err)
	}
}
