// Package store implements the Episode, Binding, Hypothesis, and Cluster
// Stats stores (spec §4.C13) against Postgres, plus in-memory
// implementations of the same interfaces for tests and dry runs.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// NewPgxConnConfig parses connString and forces
// QueryExecModeDescribeExec: pgx's default, QueryExecModeCacheStatement,
// caches prepared statement plans that go stale the moment a goose
// migration alters a table while connections are still open, producing
// "cached plan must not change result type" errors. DescribeExec
// describes each query (so JSONB/array parameter OIDs are still resolved
// correctly) without caching the plan.
func NewPgxConnConfig(connString string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("store: parsing connection string: %w", err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	return cfg, nil
}

// Open builds a pooled *sqlx.DB over the pgx stdlib driver from dsn.
func Open(dsn string, maxOpenConns, maxIdleConns int) (*sqlx.DB, error) {
	connConfig, err := NewPgxConnConfig(dsn)
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(stdlib.GetConnector(*connConfig))
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	return sqlx.NewDb(db, "pgx"), nil
}
