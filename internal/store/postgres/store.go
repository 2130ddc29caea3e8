// Package postgres implements core.Store for PostgreSQL using pgx and the
// COPY protocol.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvload/internal/core"
)

// Config holds pool settings.
type Config struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// Store is a PostgreSQL-backed core.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, pool.Close, nil
}

// Dialect implements core.Store.
func (s *Store) Dialect() string { return "postgres" }

// Begin implements core.Store.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, columns: make(map[string][]string)}, nil
}

// Tx is a PostgreSQL transaction.
type Tx struct {
	tx pgx.Tx
	// columns caches each table's column names as stored.
	columns map[string][]string
}

const tableExistsQuery = `SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = $1 AND table_name = $2
)`

const tableColumnsQuery = `SELECT column_name FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

// TableExists implements core.Tx. Names are compared exactly, since
// CreateTable quotes them and so preserves case.
func (t *Tx) TableExists(ctx context.Context, table core.QualifiedName) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, tableExistsQuery, table.Schema.String(), table.Table.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}

// CreateTable implements core.Tx.
func (t *Tx) CreateTable(ctx context.Context, table core.QualifiedName, columns []core.ColumnDef) error {
	if _, err := t.tx.Exec(ctx, createTableSQL(table, columns)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertRows copies rows with the COPY protocol.
func (t *Tx) InsertRows(ctx context.Context, table core.QualifiedName, columns []core.Identifier, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	names, err := t.resolveColumns(ctx, table, columns)
	if err != nil {
		return 0, err
	}

	converted := make([][]any, len(rows))
	for i, row := range rows {
		out := make([]any, len(row))
		for j, v := range row {
			pv, err := toPgValue(v)
			if err != nil {
				return 0, fmt.Errorf("row %d column %s: %w", i, names[j], err)
			}
			out[j] = pv
		}
		converted[i] = out
	}

	n, err := t.tx.CopyFrom(ctx, identifier(table), names, pgx.CopyFromRows(converted))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// Commit implements core.Tx.
func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback implements core.Tx.
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// resolveColumns maps requested columns onto the table's own spelling.
// COPY quotes every name, so "Age" and "age" are different columns.
func (t *Tx) resolveColumns(ctx context.Context, table core.QualifiedName, columns []core.Identifier) ([]string, error) {
	key := table.String()
	actual, ok := t.columns[key]
	if !ok {
		rows, err := t.tx.Query(ctx, tableColumnsQuery, table.Schema.String(), table.Table.String())
		if err != nil {
			return nil, fmt.Errorf("list columns of %s: %w", table, err)
		}
		actual, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, fmt.Errorf("list columns of %s: %w", table, err)
		}
		t.columns[key] = actual
	}
	return matchColumns(table, actual, columns)
}

// matchColumns prefers an exact match and falls back to a case-insensitive
// one.
func matchColumns(table core.QualifiedName, actual []string, columns []core.Identifier) ([]string, error) {
	exact := make(map[string]bool, len(actual))
	folded := make(map[string]string, len(actual))
	for _, name := range actual {
		exact[name] = true
		lower := strings.ToLower(name)
		if _, seen := folded[lower]; !seen {
			folded[lower] = name
		}
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		switch name := c.String(); {
		case exact[name]:
			names[i] = name
		case folded[c.Key()] != "":
			names[i] = folded[c.Key()]
		default:
			return nil, fmt.Errorf("column %s does not exist in %s", c, table)
		}
	}
	return names, nil
}

func identifier(table core.QualifiedName) pgx.Identifier {
	return pgx.Identifier{table.Schema.String(), table.Table.String()}
}

func createTableSQL(table core.QualifiedName, columns []core.ColumnDef) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c.Name.String()}.Sanitize() + " " + pgType(c.Type) + " NULL"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", identifier(table).Sanitize(), strings.Join(defs, ", "))
}

// pgType maps a type descriptor to its PostgreSQL equivalent.
func pgType(t core.TypeDescriptor) string {
	switch t.Base() {
	case core.TypeInt:
		return "integer"
	case core.TypeBigInt:
		return "bigint"
	case core.TypeFloat:
		return "double precision"
	case core.TypeReal:
		return "real"
	case core.TypeBit:
		return "boolean"
	case core.TypeDate:
		return "date"
	case core.TypeDateTime, core.TypeDateTime2:
		return "timestamp"
	case core.TypeDecimal, core.TypeNumeric:
		p, s, _ := t.PrecisionScale()
		return fmt.Sprintf("numeric(%d,%d)", p, s)
	case core.TypeVarChar, core.TypeNVarChar:
		n, _ := t.Length()
		return fmt.Sprintf("varchar(%d)", n)
	case core.TypeChar:
		n, _ := t.Length()
		return fmt.Sprintf("char(%d)", n)
	default:
		return "text"
	}
}

// toPgValue converts core values to pgx-encodable values.
func toPgValue(v any) (any, error) {
	d, ok := v.(core.Decimal)
	if !ok {
		return v, nil
	}
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return nil, fmt.Errorf("numeric %s: %w", d, err)
	}
	return n, nil
}
