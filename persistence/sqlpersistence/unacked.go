package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/persistence"
)

// UnackedDriver is the subset of the Driver interface that is concerned with
// the "in-flight" unacked table.
type UnackedDriver interface {
	// InsertUnacked inserts an entry into the unacked table.
	//
	// It returns false if an entry with the same fingerprint already exists.
	InsertUnacked(
		ctx context.Context,
		tx *sql.Tx,
		t persistence.Tables,
		e persistence.UnackedEntry,
	) (bool, error)

	// DeleteUnacked deletes the entry with the given fingerprint, if any.
	DeleteUnacked(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		fp string,
	) error

	// DeleteUnackedByID deletes the entry with the given ID.
	//
	// It returns false if the row does not exist.
	DeleteUnackedByID(
		ctx context.Context,
		tx *sql.Tx,
		t persistence.Tables,
		id string,
	) (bool, error)

	// SelectExpiredEntries selects the entries with an expiry time at or
	// before now, along with their message bodies.
	SelectExpiredEntries(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		now int64,
	) ([]persistence.ExpiredEntry, error)
}
