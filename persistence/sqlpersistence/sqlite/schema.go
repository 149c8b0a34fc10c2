package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dogmatiq/sqlqueue/internal/x/sqlx"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// CreateSchema creates the tables used by a queue.
//
// SQLite has no "CREATE TABLE ... LIKE" syntax, so the tables are created
// directly rather than from the templates.
func (driver) CreateSchema(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
) (err error) {
	defer sqlx.Recover(&err)

	tx := sqlx.Begin(ctx, db)
	defer tx.Rollback() // nolint:errcheck

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          TEXT NOT NULL PRIMARY KEY,
				fingerprint TEXT NOT NULL UNIQUE,
				delivery    INTEGER NOT NULL,
				locked      TEXT NOT NULL DEFAULT '0'
			)`,
			t.Queue,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_delivery_idx ON %s (delivery, locked)`,
			t.Queue,
			t.Queue,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          TEXT NOT NULL PRIMARY KEY,
				fingerprint TEXT NOT NULL UNIQUE,
				expiry      INTEGER NOT NULL
			)`,
			t.Unacked,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_expiry_idx ON %s (expiry)`,
			t.Unacked,
			t.Unacked,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          TEXT NOT NULL PRIMARY KEY,
				fingerprint TEXT NOT NULL UNIQUE,
				body        TEXT NOT NULL,
				updated_at  INTEGER NOT NULL
			)`,
			t.Messages,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_updated_at_idx ON %s (updated_at)`,
			t.Messages,
			t.Messages,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          TEXT NOT NULL PRIMARY KEY,
				fingerprint TEXT NOT NULL UNIQUE,
				body        TEXT NOT NULL,
				updated_at  INTEGER NOT NULL
			)`,
			t.DeadLetter,
		),
	)

	sqlx.Commit(tx)

	return nil
}

// DropSchema removes the tables created by CreateSchema().
func (driver) DropSchema(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
) (err error) {
	defer sqlx.Recover(&err)

	for _, n := range []string{
		t.Queue,
		t.Unacked,
		t.Messages,
		t.DeadLetter,
	} {
		sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS `+n)
	}

	return nil
}
