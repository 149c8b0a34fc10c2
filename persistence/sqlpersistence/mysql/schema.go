package mysql

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
// created "like" its template.
func (driver) CreateSchema(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
) (err error) {
	defer sqlx.Recover(&err)

	tmpl := t.Templates()

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          VARCHAR(36) NOT NULL,
				fingerprint VARCHAR(64) NOT NULL,
				delivery    BIGINT NOT NULL,
				locked      VARCHAR(255) NOT NULL DEFAULT '0',

				PRIMARY KEY (id),
				UNIQUE INDEX fingerprint_idx (fingerprint),
				INDEX delivery_idx (delivery, locked)
			) ENGINE=InnoDB`,
			tmpl.Queue,
		),
	)

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          VARCHAR(36) NOT NULL,
				fingerprint VARCHAR(64) NOT NULL,
				expiry      BIGINT NOT NULL,

				PRIMARY KEY (id),
				UNIQUE INDEX fingerprint_idx (fingerprint),
				INDEX expiry_idx (expiry)
			) ENGINE=InnoDB`,
			tmpl.Unacked,
		),
	)

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          VARCHAR(36) NOT NULL,
				fingerprint VARCHAR(64) NOT NULL,
				body        LONGTEXT NOT NULL,
				updated_at  BIGINT NOT NULL,

				PRIMARY KEY (id),
				UNIQUE INDEX fingerprint_idx (fingerprint),
				INDEX updated_at_idx (updated_at)
			) ENGINE=InnoDB`,
			tmpl.Messages,
		),
	)

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id          VARCHAR(36) NOT NULL,
				fingerprint VARCHAR(64) NOT NULL,
				body        LONGTEXT NOT NULL,
				updated_at  BIGINT NOT NULL,

				PRIMARY KEY (id),
				UNIQUE INDEX fingerprint_idx (fingerprint)
			) ENGINE=InnoDB`,
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
			db,
			fmt.Sprintf(
				`CREATE TABLE IF NOT EXISTS %s LIKE %s`,
				p[0],
				p[1],
			),
		)
	}

	return nil
}

// DropSchema removes the tables created by CreateSchema().
//
// The template tables are shared by all queues and are left in place.
func (driver) DropSchema(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(
			`DROP TABLE IF EXISTS %s, %s, %s, %s`,
			t.Queue,
			t.Unacked,
			t.Messages,
			t.DeadLetter,
		),
	)

	return nil
}
