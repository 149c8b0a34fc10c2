package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/dogmatiq/sqlqueue/internal/x/sqlx"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// UpsertMessage inserts a message body, or replaces the body and update time
// of the message with the same fingerprint.
func (driver) UpsertMessage(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	r persistence.MessageRecord,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(
			`INSERT INTO %s (
				id,
				fingerprint,
				body,
				updated_at
			) VALUES (
				?, ?, ?, ?
			) ON DUPLICATE KEY UPDATE
				body = VALUES(body),
				updated_at = VALUES(updated_at)`,
			t.Messages,
		),
		r.ID,
		r.Fingerprint,
		r.Body,
		r.UpdatedAt,
	)

	return nil
}

// UpdateMessageBody replaces the body of the message with the given
// fingerprint.
//
// MySQL only reports a row as affected if its values actually change, so the
// existence of the row is checked separately when nothing is updated.
func (driver) UpdateMessageBody(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	fp, body string,
	updatedAt int64,
) (_ bool, err error) {
	defer sqlx.Recover(&err)

	if sqlx.TryExecRow(
		ctx,
		db,
		fmt.Sprintf(
			`UPDATE %s SET
				body = ?,
				updated_at = ?
			WHERE fingerprint = ?`,
			t.Messages,
		),
		body,
		updatedAt,
		fp,
	) {
		return true, nil
	}

	n := sqlx.QueryInt64(
		ctx,
		db,
		fmt.Sprintf(
			`SELECT COUNT(*) FROM %s WHERE fingerprint = ?`,
			t.Messages,
		),
		fp,
	)

	return n > 0, nil
}

// TouchMessage sets the update time of the message with the given
// fingerprint.
func (driver) TouchMessage(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	fp string,
	updatedAt int64,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		fmt.Sprintf(
			`UPDATE %s SET updated_at = ? WHERE fingerprint = ?`,
			t.Messages,
		),
		updatedAt,
		fp,
	)

	return nil
}

// PurgeFingerprint removes all trace of a fingerprint from the queue, unacked
// and messages tables.
func (driver) PurgeFingerprint(
	ctx context.Context,
	tx *sql.Tx,
	t persistence.Tables,
	fp string,
) (err error) {
	defer sqlx.Recover(&err)

	for _, n := range []string{
		t.Queue,
		t.Unacked,
		t.Messages,
	} {
		sqlx.Exec(
			ctx,
			tx,
			fmt.Sprintf(`DELETE FROM %s WHERE fingerprint = ?`, n),
			fp,
		)
	}

	return nil
}

// SelectOrphanCandidates selects up to n messages last updated before the
// given time, along with whether each is still referenced.
func (driver) SelectOrphanCandidates(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	before int64,
	desc bool,
	n int,
) (_ []persistence.OrphanCandidate, err error) {
	defer sqlx.Recover(&err)

	order := "ASC"
	if desc {
		order = "DESC"
	}

	var candidates []persistence.OrphanCandidate

	sqlx.QueryAll(
		ctx,
		db,
		func(rows *sql.Rows) error {
			var (
				c        persistence.OrphanCandidate
				qid, uid sql.NullString
			)

			if err := rows.Scan(&c.MessageID, &qid, &uid); err != nil {
				return err
			}

			c.Queued = qid.Valid
			c.Unacked = uid.Valid
			candidates = append(candidates, c)

			return nil
		},
		fmt.Sprintf(
			`SELECT
				m.id,
				q.id,
				u.id
			FROM %s AS m
			LEFT JOIN %s AS q
			ON q.fingerprint = m.fingerprint
			LEFT JOIN %s AS u
			ON u.fingerprint = m.fingerprint
			WHERE m.updated_at < ?
			ORDER BY m.updated_at %s
			LIMIT ?`,
			t.Messages,
			t.Queue,
			t.Unacked,
			order,
		),
		before,
		n,
	)

	return candidates, nil
}

// DeleteMessages deletes the messages with the given IDs that were last
// updated before the given time.
func (driver) DeleteMessages(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
	before int64,
) (_ int64, err error) {
	defer sqlx.Recover(&err)

	return sqlx.ExecBuilder(
		ctx,
		db,
		squirrel.
			Delete(t.Messages).
			Where(squirrel.Eq{"id": ids}).
			Where(squirrel.Lt{"updated_at": before}),
	), nil
}

// SelectMessages selects up to n messages with IDs greater than afterID.
func (driver) SelectMessages(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	afterID string,
	n int,
) (_ []persistence.MessageRecord, err error) {
	defer sqlx.Recover(&err)

	var records []persistence.MessageRecord

	sqlx.QueryAll(
		ctx,
		db,
		func(rows *sql.Rows) error {
			var r persistence.MessageRecord
			if err := rows.Scan(&r.ID, &r.Fingerprint, &r.Body, &r.UpdatedAt); err != nil {
				return err
			}

			records = append(records, r)
			return nil
		},
		fmt.Sprintf(
			`SELECT
				id,
				fingerprint,
				body,
				updated_at
			FROM %s
			WHERE id > ?
			ORDER BY id
			LIMIT ?`,
			t.Messages,
		),
		afterID,
		n,
	)

	return records, nil
}
