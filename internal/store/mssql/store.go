// Package mssql implements core.Store for Microsoft SQL Server using
// database/sql and the go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/JonMunkholm/csvload/internal/core"
)

// Config holds connection settings.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store is a SQL Server-backed core.Store.
type Store struct {
	db *sql.DB
}

// Open connects to SQL Server and returns a close function for cleanup.
func Open(ctx context.Context, cfg Config) (*Store, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return New(db), func() { _ = db.Close() }, nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Dialect implements core.Store.
func (s *Store) Dialect() string { return "sqlserver" }

// Begin implements core.Store.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, columns: make(map[string]map[string]string)}, nil
}

// Tx is a SQL Server transaction.
type Tx struct {
	tx *sql.Tx
	// columns caches lower(name) -> actual name per table.
	columns map[string]map[string]string
}

const tableExistsQuery = `SELECT COUNT(1) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`

const tableColumnsQuery = `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`

// TableExists implements core.Tx.
func (t *Tx) TableExists(ctx context.Context, table core.QualifiedName) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, tableExistsQuery, table.Schema.String(), table.Table.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

// CreateTable implements core.Tx.
func (t *Tx) CreateTable(ctx context.Context, table core.QualifiedName, columns []core.ColumnDef) error {
	if _, err := t.tx.ExecContext(ctx, createTableSQL(table, columns)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertRows bulk-copies rows into table.
func (t *Tx) InsertRows(ctx context.Context, table core.QualifiedName, columns []core.Identifier, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	names, err := t.resolveColumns(ctx, table, columns)
	if err != nil {
		return 0, err
	}

	stmt, err := t.tx.PrepareContext(ctx, mssql.CopyIn(quoteFQN(table), mssql.BulkOptions{}, names...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	args := make([]any, len(columns))
	for i := range rows {
		for j, v := range rows[i] {
			args[j] = toCopyVal(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx) // flush
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Commit implements core.Tx.
func (t *Tx) Commit(context.Context) error { return t.tx.Commit() }

// Rollback implements core.Tx.
func (t *Tx) Rollback(context.Context) error { return t.tx.Rollback() }

// resolveColumns maps requested columns onto the table's own spelling.
// Bulk copy matches column names exactly, while the mapping is
// case-insensitive.
func (t *Tx) resolveColumns(ctx context.Context, table core.QualifiedName, columns []core.Identifier) ([]string, error) {
	key := strings.ToLower(table.String())
	known, ok := t.columns[key]
	if !ok {
		rows, err := t.tx.QueryContext(ctx, tableColumnsQuery, table.Schema.String(), table.Table.String())
		if err != nil {
			return nil, fmt.Errorf("list columns of %s: %w", table, err)
		}
		defer rows.Close()
		known = make(map[string]string)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, fmt.Errorf("list columns of %s: %w", table, err)
			}
			known[strings.ToLower(name)] = name
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("list columns of %s: %w", table, err)
		}
		t.columns[key] = known
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		actual, ok := known[c.Key()]
		if !ok {
			return nil, fmt.Errorf("column %s does not exist in %s", c, table)
		}
		names[i] = actual
	}
	return names, nil
}

func createTableSQL(table core.QualifiedName, columns []core.ColumnDef) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = msIdent(c.Name.String()) + " " + c.Type.String() + " NULL"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteFQN(table), strings.Join(defs, ", "))
}

// toCopyVal converts core values to types the bulk copy encoder accepts.
func toCopyVal(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case core.Decimal:
		return x.String()
	default:
		return v
	}
}

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// quoteFQN renders [schema].[table].
func quoteFQN(table core.QualifiedName) string {
	return msIdent(table.Schema.String()) + "." + msIdent(table.Table.String())
}
