package sqlx

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
)

// Exec executes a statement on the given DB.
func Exec(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) sql.Result {
	res, err := db.ExecContext(ctx, query, args...)
	Must(err)
	return res
}

// ExecCount executes a statement on the given DB and returns the number of
// affected rows.
func ExecCount(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) int64 {
	n, err := Exec(ctx, db, query, args...).RowsAffected()
	Must(err)
	return n
}

// TryExecRow executes a statement on the given DB and returns true if exactly
// one row was affected.
//
// Note that MySQL only considers a row affected by an UPDATE if at least one
// of its values actually changes.
func TryExecRow(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) bool {
	return ExecCount(ctx, db, query, args...) == 1
}

// ExecBuilder renders a statement produced by a query builder and executes it
// on the given DB. It returns the number of affected rows.
func ExecBuilder(
	ctx context.Context,
	db DB,
	b squirrel.Sqlizer,
) int64 {
	query, args, err := b.ToSql()
	Must(err)
	return ExecCount(ctx, db, query, args...)
}
