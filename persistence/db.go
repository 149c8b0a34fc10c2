package persistence

import (
	"context"
	"database/sql"
)

// DB is an interface for executing SQL statements, satisfied by *sql.DB,
// *sql.Conn and *sql.Tx.
//
// Driver operations that are used both inside and outside of a transaction
// accept a DB.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
