package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeStore records every call so tests can assert on ordering.
type fakeStore struct {
	exists    bool
	beginErr  error
	createErr error
	insertErr error
	commitErr error

	calls []string
	rows  [][]any
}

func (s *fakeStore) Dialect() string { return "fake" }

func (s *fakeStore) Begin(context.Context) (Tx, error) {
	s.calls = append(s.calls, "begin")
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &fakeTx{s: s}, nil
}

type fakeTx struct{ s *fakeStore }

func (t *fakeTx) TableExists(context.Context, QualifiedName) (bool, error) {
	t.s.calls = append(t.s.calls, "exists")
	return t.s.exists, nil
}

func (t *fakeTx) CreateTable(context.Context, QualifiedName, []ColumnDef) error {
	t.s.calls = append(t.s.calls, "create")
	return t.s.createErr
}

func (t *fakeTx) InsertRows(_ context.Context, _ QualifiedName, _ []Identifier, rows [][]any) (int64, error) {
	t.s.calls = append(t.s.calls, "insert")
	if t.s.insertErr != nil {
		return 0, t.s.insertErr
	}
	t.s.rows = append(t.s.rows, rows...)
	return int64(len(rows)), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.s.calls = append(t.s.calls, "commit")
	return t.s.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.s.calls = append(t.s.calls, "rollback")
	return nil
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func mappingsFor(t *testing.T, header []string, reqs ...MappingRequest) []MappingEntry {
	t.Helper()
	entries, err := ValidateMappings(nil, header, reqs)
	if err != nil {
		t.Fatalf("ValidateMappings() error = %v", err)
	}
	return entries
}

var testTable = QualifiedName{Schema: MustIdentifier("dbo"), Table: MustIdentifier("People")}

func TestLoader_CallOrder(t *testing.T) {
	tests := []struct {
		name      string
		exists    bool
		wantCalls string
		wantNew   bool
	}{
		{"creates missing table", false, "begin exists create insert insert commit", true},
		{"reuses existing table", true, "begin exists insert insert commit", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{exists: tt.exists}
			path := writeCSV(t, "id,name\n1,a\n2,b\n3,c\n")
			entries := mappingsFor(t, []string{"id", "name"},
				MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"},
				MappingRequest{TargetColumn: "name", CSVColumn: "name", TargetType: "VARCHAR(10)"},
			)

			loader := NewLoader(store, LoaderConfig{ChunkSize: 2})
			result, err := loader.Load(context.Background(), path, testTable, entries)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if got := strings.Join(store.calls, " "); got != tt.wantCalls {
				t.Errorf("calls = %q, want %q", got, tt.wantCalls)
			}
			if result.RowsInserted != 3 || result.Chunks != 2 || result.TableCreated != tt.wantNew {
				t.Errorf("result = %+v, want 3 rows in 2 chunks, created=%v", result, tt.wantNew)
			}
			if loader.State() != StateCommitted {
				t.Errorf("State() = %s, want %s", loader.State(), StateCommitted)
			}
			if store.rows[0][0] != int64(1) || store.rows[2][1] != "c" {
				t.Errorf("rows = %v", store.rows)
			}
		})
	}
}

func TestLoader_StoreFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		store     *fakeStore
		wantOp    string
		wantCalls string
	}{
		{"begin", &fakeStore{beginErr: boom}, "begin transaction", "begin"},
		{"create", &fakeStore{createErr: boom}, "create table", "begin exists create rollback"},
		{"insert", &fakeStore{exists: true, insertErr: boom}, "insert rows", "begin exists insert rollback"},
		{"commit", &fakeStore{exists: true, commitErr: boom}, "commit", "begin exists insert commit rollback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, "id\n1\n")
			entries := mappingsFor(t, []string{"id"}, MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"})

			_, err := NewLoader(tt.store, LoaderConfig{}).Load(context.Background(), path, testTable, entries)

			var storeErr *StoreError
			if !errors.As(err, &storeErr) {
				t.Fatalf("error = %v, want *StoreError", err)
			}
			if storeErr.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", storeErr.Op, tt.wantOp)
			}
			if !errors.Is(err, boom) {
				t.Error("StoreError does not unwrap to the cause")
			}
			if got := strings.Join(tt.store.calls, " "); got != tt.wantCalls {
				t.Errorf("calls = %q, want %q", got, tt.wantCalls)
			}
		})
	}
}

func TestLoader_ConversionErrorRollsBack(t *testing.T) {
	store := &fakeStore{exists: true}
	path := writeCSV(t, "id\n1\n2\nabc\n4\n")
	entries := mappingsFor(t, []string{"id"}, MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"})

	loader := NewLoader(store, LoaderConfig{ChunkSize: 2})
	_, err := loader.Load(context.Background(), path, testTable, entries)

	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("error = %v, want *ConversionError", err)
	}
	if len(convErr.Rows) != 1 || convErr.Rows[0].Row != 4 {
		t.Fatalf("Rows = %+v, want one error on row 4", convErr.Rows)
	}
	if !errors.Is(convErr.Rows[0], ErrInvalidInt) {
		t.Errorf("row error = %v, want ErrInvalidInt", convErr.Rows[0])
	}
	if msg := convErr.Messages()[0]; !strings.HasPrefix(msg, "Row 4: id: invalid integer") {
		t.Errorf("message = %q", msg)
	}
	// The first chunk was inserted, the failing one never was.
	if got := strings.Join(store.calls, " "); got != "begin exists insert rollback" {
		t.Errorf("calls = %q", got)
	}
	if loader.State() != StateRolledBack {
		t.Errorf("State() = %s, want %s", loader.State(), StateRolledBack)
	}
}

func TestLoader_MaxErrors(t *testing.T) {
	var b strings.Builder
	b.WriteString("id\n")
	for i := 0; i < 50; i++ {
		b.WriteString("bad\n")
	}
	path := writeCSV(t, b.String())
	entries := mappingsFor(t, []string{"id"}, MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"})

	_, err := NewLoader(&fakeStore{}, LoaderConfig{MaxErrors: 3}).Load(context.Background(), path, testTable, entries)

	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("error = %v, want *ConversionError", err)
	}
	if len(convErr.Rows) != 3 {
		t.Errorf("len(Rows) = %d, want 3", len(convErr.Rows))
	}
}

func TestLoader_MalformedRecord(t *testing.T) {
	path := writeCSV(t, "id,name\n1,a\n2\n")
	entries := mappingsFor(t, []string{"id", "name"},
		MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"},
	)

	_, err := NewLoader(&fakeStore{}, LoaderConfig{}).Load(context.Background(), path, testTable, entries)

	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("error = %v, want *ConversionError", err)
	}
	if got := convErr.Messages()[0]; got != "Row 3: expected 2 fields, got 1" {
		t.Errorf("message = %q", got)
	}
}

func TestLoader_PreflightTouchesNoStore(t *testing.T) {
	entries := mappingsFor(t, []string{"id"}, MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"})

	tests := []struct {
		name     string
		csv      string
		table    QualifiedName
		mappings []MappingEntry
	}{
		{"mapped column missing from file", "other\n1\n", testTable, entries},
		{"no mappings", "id\n1\n", testTable, nil},
		{"zero table", "id\n1\n", QualifiedName{}, entries},
		{"hand-built entry", "id\n1\n", testTable, []MappingEntry{{CSVColumn: "id"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			_, err := NewLoader(store, LoaderConfig{}).Load(context.Background(), writeCSV(t, tt.csv), tt.table, tt.mappings)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if len(store.calls) != 0 {
				t.Errorf("store calls = %v, want none", store.calls)
			}
		})
	}
}

func TestLoader_NoHeader(t *testing.T) {
	entries := mappingsFor(t, []string{"id"}, MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"})
	store := &fakeStore{}
	_, err := NewLoader(store, LoaderConfig{}).Load(context.Background(), writeCSV(t, ""), testTable, entries)
	if !errors.Is(err, ErrNoHeader) {
		t.Errorf("error = %v, want ErrNoHeader", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("store calls = %v, want none", store.calls)
	}
}

func TestLoader_SingleUse(t *testing.T) {
	path := writeCSV(t, "id\n1\n")
	entries := mappingsFor(t, []string{"id"}, MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"})
	loader := NewLoader(&fakeStore{}, LoaderConfig{})

	if _, err := loader.Load(context.Background(), path, testTable, entries); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	if _, err := loader.Load(context.Background(), path, testTable, entries); !errors.Is(err, ErrLoaderUsed) {
		t.Errorf("second Load() error = %v, want ErrLoaderUsed", err)
	}
}

func TestLoader_HeaderOnlyCommitsEmpty(t *testing.T) {
	store := &fakeStore{}
	entries := mappingsFor(t, []string{"id"}, MappingRequest{TargetColumn: "id", CSVColumn: "id", TargetType: "INT"})

	result, err := NewLoader(store, LoaderConfig{}).Load(context.Background(), writeCSV(t, "id\n"), testTable, entries)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.RowsInserted != 0 || !result.TableCreated {
		t.Errorf("result = %+v, want 0 rows and a created table", result)
	}
	if got := strings.Join(store.calls, " "); got != "begin exists create commit" {
		t.Errorf("calls = %q", got)
	}
}
