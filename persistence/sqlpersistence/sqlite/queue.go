package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/dogmatiq/sqlqueue/internal/x/sqlx"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// UpsertQueueEntry inserts an entry into the queue, or updates the delivery
// time of the entry with the same fingerprint.
func (driver) UpsertQueueEntry(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	e persistence.QueueEntry,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(
			`INSERT INTO %s (
				id,
				fingerprint,
				delivery,
				locked
			) VALUES (
				$1, $2, $3, $4
			) ON CONFLICT (fingerprint) DO UPDATE SET
				delivery = excluded.delivery`,
			t.Queue,
		),
		e.ID,
		e.Fingerprint,
		e.Delivery,
		string(e.Locked),
	)

	return nil
}

// UpdateDelivery sets the delivery time of the entry with the given
// fingerprint.
func (driver) UpdateDelivery(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	fp string,
	delivery int64,
) (_ bool, err error) {
	defer sqlx.Recover(&err)

	return sqlx.TryExecRow(
		ctx,
		db,
		fmt.Sprintf(
			`UPDATE %s SET delivery = $1 WHERE fingerprint = $2`,
			t.Queue,
		),
		delivery,
		fp,
	), nil
}

// IsQueuedOrUnacked returns true if the fingerprint is present in either the
// queue or the unacked table.
func (driver) IsQueuedOrUnacked(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	fp string,
) (_ bool, err error) {
	defer sqlx.Recover(&err)

	n := sqlx.QueryInt64(
		ctx,
		db,
		fmt.Sprintf(
			`SELECT
				(SELECT COUNT(*) FROM %s WHERE fingerprint = $1) +
				(SELECT COUNT(*) FROM %s WHERE fingerprint = $1)`,
			t.Queue,
			t.Unacked,
		),
		fp,
	)

	return n > 0, nil
}

// SelectReadyIDs selects the IDs of up to n unlocked entries that are due for
// delivery.
func (driver) SelectReadyIDs(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	now int64,
	n int,
) (_ []string, err error) {
	defer sqlx.Recover(&err)

	return sqlx.QueryStrings(
		ctx,
		db,
		fmt.Sprintf(
			`SELECT id FROM %s
			WHERE delivery <= $1
			AND locked = $2
			ORDER BY delivery
			LIMIT $3`,
			t.Queue,
		),
		now,
		string(persistence.Unlocked),
		n,
	), nil
}

// LockQueueEntries sets the lock marker of those entries with the given IDs
// that are still unlocked.
func (driver) LockQueueEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
	m persistence.LockMarker,
) (_ int64, err error) {
	defer sqlx.Recover(&err)

	return sqlx.ExecBuilder(
		ctx,
		db,
		squirrel.
			Update(t.Queue).
			Set("locked", string(m)).
			Where(squirrel.Eq{"id": ids}).
			Where(squirrel.Eq{"locked": string(persistence.Unlocked)}).
			PlaceholderFormat(squirrel.Dollar),
	), nil
}

// SelectClaimedEntries selects the entries locked with the given marker,
// along with their message bodies.
func (driver) SelectClaimedEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	m persistence.LockMarker,
) (_ []persistence.ClaimedEntry, err error) {
	defer sqlx.Recover(&err)

	var entries []persistence.ClaimedEntry

	sqlx.QueryAll(
		ctx,
		db,
		func(rows *sql.Rows) error {
			var e persistence.ClaimedEntry
			if err := rows.Scan(
				&e.ID,
				&e.Fingerprint,
				&e.Delivery,
				&e.Locked,
				&e.Body,
			); err != nil {
				return err
			}

			entries = append(entries, e)
			return nil
		},
		fmt.Sprintf(
			`SELECT
				q.id,
				q.fingerprint,
				q.delivery,
				q.locked,
				m.body
			FROM %s AS q
			LEFT JOIN %s AS m
			ON m.fingerprint = q.fingerprint
			WHERE q.locked = $1`,
			t.Queue,
			t.Messages,
		),
		string(m),
	)

	return entries, nil
}

// DeleteQueueEntries deletes the entries with the given IDs.
func (driver) DeleteQueueEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.ExecBuilder(
		ctx,
		db,
		squirrel.
			Delete(t.Queue).
			Where(squirrel.Eq{"id": ids}).
			PlaceholderFormat(squirrel.Dollar),
	)

	return nil
}

// UnlockQueueEntries releases the lock on the entries with the given IDs.
func (driver) UnlockQueueEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.ExecBuilder(
		ctx,
		db,
		squirrel.
			Update(t.Queue).
			Set("locked", string(persistence.Unlocked)).
			Where(squirrel.Eq{"id": ids}).
			PlaceholderFormat(squirrel.Dollar),
	)

	return nil
}

// SelectLockedEntries selects all entries that are currently locked.
func (driver) SelectLockedEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
) (_ []persistence.QueueEntry, err error) {
	defer sqlx.Recover(&err)

	var entries []persistence.QueueEntry

	sqlx.QueryAll(
		ctx,
		db,
		func(rows *sql.Rows) error {
			var e persistence.QueueEntry
			if err := rows.Scan(
				&e.ID,
				&e.Fingerprint,
				&e.Delivery,
				&e.Locked,
			); err != nil {
				return err
			}

			entries = append(entries, e)
			return nil
		},
		fmt.Sprintf(
			`SELECT
				id,
				fingerprint,
				delivery,
				locked
			FROM %s
			WHERE locked != $1`,
			t.Queue,
		),
		string(persistence.Unlocked),
	)

	return entries, nil
}

// DeleteLockedEntry deletes the entry with the given ID, only if it is still
// locked with the given marker.
func (driver) DeleteLockedEntry(
	ctx context.Context,
	tx *sql.Tx,
	t persistence.Tables,
	id string,
	m persistence.LockMarker,
) (_ bool, err error) {
	defer sqlx.Recover(&err)

	return sqlx.TryExecRow(
		ctx,
		tx,
		fmt.Sprintf(
			`DELETE FROM %s WHERE id = $1 AND locked = $2`,
			t.Queue,
		),
		id,
		string(m),
	), nil
}
