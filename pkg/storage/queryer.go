package storage

import (
	"context"
	"database/sql"
)

// Queryer is the subset of database/sql satisfied by both *sql.DB and
// *sql.Tx. Store methods that must be able to run inside a caller's
// transaction take a Queryer instead of a handle.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
