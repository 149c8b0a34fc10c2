package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/persistence"
)

// QueueDriver is the subset of the Driver interface that is concerned with the
// "ready" queue table.
type QueueDriver interface {
	// UpsertQueueEntry inserts an entry into the queue, or updates the
	// delivery time of the entry with the same fingerprint.
	UpsertQueueEntry(
		ctx context.Context,
		db persistence.DB,
		t persistence.Tables,
		e persistence.QueueEntry,
	) error

	// UpdateDelivery sets the delivery time of the entry with the given
	// fingerprint.
	//
	// It returns false if the row does not exist.
	UpdateDelivery(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		fp string,
		delivery int64,
	) (bool, error)

	// IsQueuedOrUnacked returns true if the fingerprint is present in either
	// the queue or the unacked table.
	IsQueuedOrUnacked(
		ctx context.Context,
		db persistence.DB,
		t persistence.Tables,
		fp string,
	) (bool, error)

	// SelectReadyIDs selects the IDs of up to n unlocked entries with a
	// delivery time at or before now, ordered by delivery time.
	//
	// It is a non-locking read; the entries may be claimed by another poller
	// before they can be locked.
	SelectReadyIDs(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		now int64,
		n int,
	) ([]string, error)

	// LockQueueEntries sets the lock marker of those entries with the given
	// IDs that are still unlocked.
	//
	// It returns the number of entries that were locked.
	LockQueueEntries(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		ids []string,
		m persistence.LockMarker,
	) (int64, error)

	// SelectClaimedEntries selects the entries locked with the given marker,
	// along with their message bodies.
	SelectClaimedEntries(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		m persistence.LockMarker,
	) ([]persistence.ClaimedEntry, error)

	// DeleteQueueEntries deletes the entries with the given IDs.
	DeleteQueueEntries(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		ids []string,
	) error

	// UnlockQueueEntries releases the lock on the entries with the given IDs.
	UnlockQueueEntries(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		ids []string,
	) error

	// SelectLockedEntries selects all entries that are currently locked.
	SelectLockedEntries(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
	) ([]persistence.QueueEntry, error)

	// DeleteLockedEntry deletes the entry with the given ID, only if it is
	// still locked with the given marker.
	//
	// It returns false if the row does not exist or the marker has changed.
	DeleteLockedEntry(
		ctx context.Context,
		tx *sql.Tx,
		t persistence.Tables,
		id string,
		m persistence.LockMarker,
	) (bool, error)
}
