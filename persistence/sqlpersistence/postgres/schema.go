package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dogmatiq/sqlqueue/internal/x/sqlx"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// CreateSchema creates the tables used by a queue.
//
// The template tables are created first, then each of the queue's tables is
// created "like" its template, including its constraints and indexes.
func (driver) CreateSchema(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
) (err error) {
	defer sqlx.Recover(&err)

	tx := sqlx.Begin(ctx, db)
	defer tx.Rollback() // nolint:errcheck

	tmpl := t.Templates()

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          VARCHAR(36) NOT NULL PRIMARY KEY,
				fingerprint VARCHAR(64) NOT NULL UNIQUE,
				delivery    BIGINT NOT NULL,
				locked      VARCHAR(255) NOT NULL DEFAULT '0'
			)`,
			tmpl.Queue,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_delivery_idx ON %s (delivery, locked)`,
			tmpl.Queue,
			tmpl.Queue,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          VARCHAR(36) NOT NULL PRIMARY KEY,
				fingerprint VARCHAR(64) NOT NULL UNIQUE,
				expiry      BIGINT NOT NULL
			)`,
			tmpl.Unacked,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_expiry_idx ON %s (expiry)`,
			tmpl.Unacked,
			tmpl.Unacked,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          VARCHAR(36) NOT NULL PRIMARY KEY,
				fingerprint VARCHAR(64) NOT NULL UNIQUE,
				body        TEXT NOT NULL,
				updated_at  BIGINT NOT NULL
			)`,
			tmpl.Messages,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_updated_at_idx ON %s (updated_at)`,
			tmpl.Messages,
			tmpl.Messages,
		),
	)

	sqlx.Exec(
		ctx,
		tx,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          VARCHAR(36) NOT NULL PRIMARY KEY,
				fingerprint VARCHAR(64) NOT NULL UNIQUE,
				body        TEXT NOT NULL,
				updated_at  BIGINT NOT NULL
			)`,
			tmpl.DeadLetter,
		),
	)

	for _, p := range [][2]string{
		{t.Queue, tmpl.Queue},
		{t.Unacked, tmpl.Unacked},
		{t.Messages, tmpl.Messages},
		{t.DeadLetter, tmpl.DeadLetter},
	} {
		sqlx.Exec(
			ctx,
			tx,
			fmt.Sprintf(
				`CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)`,
				p[0],
				p[1],
			),
		)
	}

	sqlx.Commit(tx)

	return nil
}

// DropSchema removes the tables created by CreateSchema().
//
// The template tables are shared by all queues and are left in place.
func (driver) DropSchema(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
) error {
	_, err := db.ExecContext(
		ctx,
		fmt.Sprintf(
			`DROP TABLE IF EXISTS %s, %s, %s, %s`,
			t.Queue,
			t.Unacked,
			t.Messages,
			t.DeadLetter,
		),
	)

	return err
}
