package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dogmatiq/sqlqueue/internal/x/sqlx"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// InsertUnacked inserts an entry into the unacked table.
//
// It returns false if an entry with the same fingerprint already exists.
func (driver) InsertUnacked(
	ctx context.Context,
	tx *sql.Tx,
	t persistence.Tables,
	e persistence.UnackedEntry,
) (_ bool, err error) {
	defer sqlx.Recover(&err)

	return sqlx.TryExecRow(
		ctx,
		tx,
		fmt.Sprintf(
			`INSERT INTO %s (
				id,
				fingerprint,
				expiry
			) VALUES (
				$1, $2, $3
			) ON CONFLICT DO NOTHING`,
			t.Unacked,
		),
		e.ID,
		e.Fingerprint,
		e.Expiry,
	), nil
}

// DeleteUnacked deletes the entry with the given fingerprint, if any.
func (driver) DeleteUnacked(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	fp string,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(`DELETE FROM %s WHERE fingerprint = $1`, t.Unacked),
		fp,
	)

	return nil
}

// DeleteUnackedByID deletes the entry with the given ID.
func (driver) DeleteUnackedByID(
	ctx context.Context,
	tx *sql.Tx,
	t persistence.Tables,
	id string,
) (_ bool, err error) {
	defer sqlx.Recover(&err)

	return sqlx.TryExecRow(
		ctx,
		tx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.Unacked),
		id,
	), nil
}

// SelectExpiredEntries selects the entries whose lease has expired, along
// with their message bodies.
func (driver) SelectExpiredEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	now int64,
) (_ []persistence.ExpiredEntry, err error) {
	defer sqlx.Recover(&err)

	var entries []persistence.ExpiredEntry

	sqlx.QueryAll(
		ctx,
		db,
		func(rows *sql.Rows) error {
			var e persistence.ExpiredEntry
			if err := rows.Scan(
				&e.ID,
				&e.Fingerprint,
				&e.Expiry,
				&e.Body,
			); err != nil {
				return err
			}

			entries = append(entries, e)
			return nil
		},
		fmt.Sprintf(
			`SELECT
				u.id,
				u.fingerprint,
				u.expiry,
				m.body
			FROM %s AS u
			LEFT JOIN %s AS m
			ON m.fingerprint = u.fingerprint
			WHERE u.expiry <= $1
			ORDER BY u.expiry`,
			t.Unacked,
			t.Messages,
		),
		now,
	)

	return entries, nil
}
