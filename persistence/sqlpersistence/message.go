package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/persistence"
)

// MessageDriver is the subset of the Driver interface that is concerned with
// the message bodies.
type MessageDriver interface {
	// UpsertMessage inserts a message body, or replaces the body and update
	// time of the message with the same fingerprint.
	UpsertMessage(
		ctx context.Context,
		db persistence.DB,
		t persistence.Tables,
		r persistence.MessageRecord,
	) error

	// UpdateMessageBody replaces the body of the message with the given
	// fingerprint.
	//
	// It returns false if the row does not exist.
	UpdateMessageBody(
		ctx context.Context,
		db persistence.DB,
		t persistence.Tables,
		fp, body string,
		updatedAt int64,
	) (bool, error)

	// TouchMessage sets the update time of the message with the given
	// fingerprint.
	TouchMessage(
		ctx context.Context,
		db persistence.DB,
		t persistence.Tables,
		fp string,
		updatedAt int64,
	) error

	// PurgeFingerprint removes all trace of a fingerprint from the queue,
	// unacked and messages tables.
	PurgeFingerprint(
		ctx context.Context,
		tx *sql.Tx,
		t persistence.Tables,
		fp string,
	) error

	// SelectOrphanCandidates selects up to n messages last updated before the
	// given time, ordered by update time, along with whether each is still
	// referenced by the queue or unacked tables.
	SelectOrphanCandidates(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		before int64,
		desc bool,
		n int,
	) ([]persistence.OrphanCandidate, error)

	// DeleteMessages deletes the messages with the given IDs that were last
	// updated before the given time.
	//
	// It returns the number of rows deleted.
	DeleteMessages(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		ids []string,
		before int64,
	) (int64, error)

	// SelectMessages selects up to n messages with IDs greater than afterID,
	// ordered by ID.
	SelectMessages(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		afterID string,
		n int,
	) ([]persistence.MessageRecord, error)
}
