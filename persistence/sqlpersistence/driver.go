package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/persistence"
)

// Driver is used to interface with the underlying SQL database.
//
// Every operation accepts the names of the tables belonging to a single queue.
type Driver interface {
	MessageDriver
	QueueDriver
	UnackedDriver
	DeadLetterDriver

	// IsCompatibleWith returns nil if this driver can be used with db.
	IsCompatibleWith(ctx context.Context, db *sql.DB) error

	// Begin starts a transaction.
	Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error)

	// CreateSchema creates the tables used by a queue, if they do not already
	// exist.
	CreateSchema(ctx context.Context, db *sql.DB, t persistence.Tables) error

	// DropSchema removes the tables created by CreateSchema().
	DropSchema(ctx context.Context, db *sql.DB, t persistence.Tables) error

	// SelectState returns the number of rows in each of a queue's tables.
	//
	// All counts are read in a single statement. now is the current time in
	// epoch milliseconds, used to count the ready messages.
	SelectState(
		ctx context.Context,
		db *sql.DB,
		t persistence.Tables,
		now int64,
	) (persistence.State, error)

	// IsPermanent returns true if err is a native database error that can
	// never succeed on retry, such as the use of an unsupported feature.
	IsPermanent(err error) bool
}
