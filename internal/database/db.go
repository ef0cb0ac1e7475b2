// Package database defines the storage abstraction the pipeline runs on.
// Two drivers implement it: postgres (pgx pool) and sqlite (single local
// file, matching unattended single-host deployments).
package database

import (
	"context"
	"database/sql"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type DB interface {
	Ping(ctx context.Context) error
	Close() error

	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row

	Begin(ctx context.Context) (Tx, error)

	// Dialect reports which SQL dialect the driver speaks, for the few
	// places (migrations, locking) that cannot stay portable.
	Dialect() string

	SQLDB() *sql.DB
}

type Tx interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Rows interface {
	Close()
	Next() bool
	Scan(dest ...any) error
	Err() error
}

type Row interface {
	Scan(dest ...any) error
}
