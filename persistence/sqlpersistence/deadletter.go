package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/persistence"
)

// DeadLetterDriver is the subset of the Driver interface that is concerned
// with the dead-letter table.
type DeadLetterDriver interface {
	// UpsertDeadLetter inserts a dead-lettered message, or replaces the body
	// of the existing record with the same fingerprint.
	UpsertDeadLetter(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		r persistence.DeadLetterRecord,
	) error

	// SelectDeadLetter selects the dead-lettered message with the given
	// fingerprint.
	//
	// It returns false if the row does not exist.
	SelectDeadLetter(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		fp string,
	) (persistence.DeadLetterRecord, bool, error)
}
