// Package store selects a core.Store backend from configuration.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvload/internal/config"
	"github.com/JonMunkholm/csvload/internal/core"
	"github.com/JonMunkholm/csvload/internal/store/mssql"
	"github.com/JonMunkholm/csvload/internal/store/postgres"
	"github.com/JonMunkholm/csvload/internal/store/sqlite"
)

// Open connects to the database named by cfg. The returned function closes it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (core.Store, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverSQLServer, "":
		st, closeFn, err := mssql.Open(ctx, mssql.Config{
			DSN:          cfg.URL,
			MaxOpenConns: cfg.MaxConns,
			MaxIdleConns: cfg.MinConns,
		})
		return opened(st, closeFn, err)
	case config.DriverPostgres:
		st, closeFn, err := postgres.Open(ctx, postgres.Config{
			URL:      cfg.URL,
			MaxConns: int32(cfg.MaxConns),
			MinConns: int32(cfg.MinConns),
		})
		return opened(st, closeFn, err)
	case config.DriverSQLite:
		st, closeFn, err := sqlite.Open(ctx, cfg.URL)
		return opened(st, closeFn, err)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// opened keeps a nil backend pointer from becoming a non-nil core.Store.
func opened[S core.Store](st S, closeFn func(), err error) (core.Store, func(), error) {
	if err != nil {
		return nil, nil, err
	}
	return st, closeFn, nil
}
