package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dogmatiq/sqlqueue/internal/x/sqlx"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// UpsertDeadLetter inserts a dead-lettered message, or replaces the body of
// the existing record with the same fingerprint.
func (driver) UpsertDeadLetter(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	r persistence.DeadLetterRecord,
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
			t.DeadLetter,
		),
		r.ID,
		r.Fingerprint,
		r.Body,
		r.UpdatedAt,
	)

	return nil
}

// SelectDeadLetter selects the dead-lettered message with the given
// fingerprint.
func (driver) SelectDeadLetter(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	fp string,
) (persistence.DeadLetterRecord, bool, error) {
	var r persistence.DeadLetterRecord

	err := db.QueryRowContext(
		ctx,
		fmt.Sprintf(
			`SELECT
				id,
				fingerprint,
				body,
				updated_at
			FROM %s
			WHERE fingerprint = ?`,
			t.DeadLetter,
		),
		fp,
	).Scan(
		&r.ID,
		&r.Fingerprint,
		&r.Body,
		&r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.DeadLetterRecord{}, false, nil
	}

	return r, err == nil, err
}
