// Package sqlite implements core.Store on an embedded SQLite database.
//
// SQLite has no schemas in the SQL Server sense, so schema.table is stored
// as a single quoted table name "schema.table". Rows are inserted with a
// prepared statement inside the load's transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/csvload/internal/core"
)

// Store is a SQLite-backed core.Store.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn, e.g. "csvload.db" or
// "file:csvload.db?_pragma=busy_timeout(5000)".
func Open(ctx context.Context, dsn string) (*Store, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent loads.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{db: db}, func() { _ = db.Close() }, nil
}

// DB exposes the underlying handle for inspection.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect implements core.Store.
func (s *Store) Dialect() string { return "sqlite" }

// Begin implements core.Store.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is a SQLite transaction.
type Tx struct {
	tx *sql.Tx
}

// TableExists implements core.Tx.
func (t *Tx) TableExists(ctx context.Context, table core.QualifiedName) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`,
		TableName(table),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: check table %s: %w", table, err)
	}
	return n > 0, nil
}

// CreateTable implements core.Tx.
func (t *Tx) CreateTable(ctx context.Context, table core.QualifiedName, columns []core.ColumnDef) error {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c.Name.String()) + " " + c.Type.String() + " NULL"
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(TableName(table)), strings.Join(defs, ", "))
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", table, err)
	}
	return nil
}

// InsertRows implements core.Tx.
func (t *Tx) InsertRows(ctx context.Context, table core.QualifiedName, columns []core.Identifier, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := t.tx.PrepareContext(ctx, insertSQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var total int64
	for i, row := range rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// Commit implements core.Tx.
func (t *Tx) Commit(context.Context) error { return t.tx.Commit() }

// Rollback implements core.Tx.
func (t *Tx) Rollback(context.Context) error { return t.tx.Rollback() }

// TableName returns the flattened SQLite table name for table.
func TableName(table core.QualifiedName) string {
	return table.Schema.String() + "." + table.Table.String()
}

func insertSQL(table core.QualifiedName, columns []core.Identifier) string {
	cols := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quoteIdent(c.String())
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(TableName(table)), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
