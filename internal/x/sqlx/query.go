package sqlx

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
)

// Query executes a query on the given DB.
func Query(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) *sql.Rows {
	rows, err := db.QueryContext(ctx, query, args...)
	Must(err)
	return rows
}

// QueryBuilder renders a query produced by a query builder and executes it on
// the given DB.
func QueryBuilder(
	ctx context.Context,
	db DB,
	b squirrel.Sqlizer,
) *sql.Rows {
	query, args, err := b.ToSql()
	Must(err)
	return Query(ctx, db, query, args...)
}

// QueryInto executes a single-row query on the given DB and scans the result
// into the given values.
func QueryInto(
	ctx context.Context,
	db DB,
	values []interface{},
	query string,
	args ...interface{},
) {
	row := db.QueryRowContext(ctx, query, args...)
	Must(row.Scan(values...))
}

// QueryInt64 executes a single-column, single-row query on the given DB and
// returns a single int64 result.
func QueryInt64(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) (v int64) {
	QueryInto(ctx, db, []interface{}{&v}, query, args...)
	return v
}

// QueryStrings executes a single-column query on the given DB and returns
// each row's value.
func QueryStrings(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) []string {
	rows := Query(ctx, db, query, args...)
	defer rows.Close()

	var values []string

	for rows.Next() {
		var v string
		Must(rows.Scan(&v))
		values = append(values, v)
	}

	Must(rows.Err())

	return values
}

// QueryAll executes a query on the given DB and calls scan once for each row.
func QueryAll(
	ctx context.Context,
	db DB,
	scan func(*sql.Rows) error,
	query string,
	args ...interface{},
) {
	rows := Query(ctx, db, query, args...)
	defer rows.Close()

	for rows.Next() {
		Must(scan(rows))
	}

	Must(rows.Err())
}
