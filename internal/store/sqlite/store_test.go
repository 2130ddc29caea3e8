package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/csvload/internal/core"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, closeFn, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(closeFn)
	return s
}

func mustTable(t *testing.T, s string) core.QualifiedName {
	t.Helper()
	q, err := core.ValidateQualifiedTable(s)
	if err != nil {
		t.Fatalf("ValidateQualifiedTable(%q) error = %v", s, err)
	}
	return q
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("Open() expected error for empty DSN")
	}
}

func TestInsertSQL(t *testing.T) {
	got := insertSQL(mustTable(t, "dbo.People"), []core.Identifier{core.MustIdentifier("Age"), core.MustIdentifier("Name")})
	want := `INSERT INTO "dbo.People" ("Age", "Name") VALUES (?, ?)`
	if got != want {
		t.Errorf("insertSQL() = %q, want %q", got, want)
	}
}

func TestTx_CreateInsertCommit(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	table := mustTable(t, "dbo.People")

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	exists, err := tx.TableExists(ctx, table)
	if err != nil || exists {
		t.Fatalf("TableExists() = %v, %v; want false, nil", exists, err)
	}
	cols := []core.ColumnDef{
		{Name: core.MustIdentifier("Age"), Type: core.MustParseType("INT")},
		{Name: core.MustIdentifier("Name"), Type: core.MustParseType("NVARCHAR(50)")},
	}
	if err := tx.CreateTable(ctx, table, cols); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	n, err := tx.InsertRows(ctx, table,
		[]core.Identifier{cols[0].Name, cols[1].Name},
		[][]any{{int64(30), "Ann"}, {nil, "Bob"}},
	)
	if err != nil {
		t.Fatalf("InsertRows() error = %v", err)
	}
	if n != 2 {
		t.Errorf("InsertRows() = %d, want 2", n)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var count, nulls int
	if err := s.DB().QueryRow(`SELECT COUNT(*), SUM(CASE WHEN "Age" IS NULL THEN 1 ELSE 0 END) FROM "dbo.People"`).Scan(&count, &nulls); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if count != 2 || nulls != 1 {
		t.Errorf("count, nulls = %d, %d; want 2, 1", count, nulls)
	}

	tx2, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx2.Rollback(ctx)
	exists, err = tx2.TableExists(ctx, mustTable(t, "DBO.people"))
	if err != nil || !exists {
		t.Errorf("TableExists(case-insensitive) = %v, %v; want true, nil", exists, err)
	}
}

func TestTx_RollbackDropsCreatedTable(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	table := mustTable(t, "dbo.Temp")

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.CreateTable(ctx, table, []core.ColumnDef{{Name: core.MustIdentifier("x"), Type: core.MustParseType("INT")}}); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE name = 'dbo.Temp'`).Scan(&n); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if n != 0 {
		t.Errorf("table still exists after rollback")
	}
}

func TestTx_InsertRowsEmpty(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.InsertRows(ctx, mustTable(t, "dbo.Missing"), []core.Identifier{core.MustIdentifier("a")}, nil)
	if err != nil || n != 0 {
		t.Errorf("InsertRows(nil) = %d, %v; want 0, nil", n, err)
	}
}
