package fixtures

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
)

// DriverStub is a test implementation of the sqlpersistence.Driver interface.
type DriverStub struct {
	sqlpersistence.Driver

	UpsertMessageFunc     func(context.Context, persistence.DB, persistence.Tables, persistence.MessageRecord) error
	UpdateMessageBodyFunc func(context.Context, persistence.DB, persistence.Tables, string, string, int64) (bool, error)
	SelectReadyIDsFunc    func(context.Context, *sql.DB, persistence.Tables, int64, int) ([]string, error)
	LockQueueEntriesFunc  func(context.Context, *sql.DB, persistence.Tables, []string, persistence.LockMarker) (int64, error)
	SelectStateFunc       func(context.Context, *sql.DB, persistence.Tables, int64) (persistence.State, error)
	UpsertDeadLetterFunc  func(context.Context, *sql.DB, persistence.Tables, persistence.DeadLetterRecord) error
}

// UpsertMessage inserts or replaces a message body.
func (d *DriverStub) UpsertMessage(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	r persistence.MessageRecord,
) error {
	if d.UpsertMessageFunc != nil {
		return d.UpsertMessageFunc(ctx, db, t, r)
	}

	if d.Driver != nil {
		return d.Driver.UpsertMessage(ctx, db, t, r)
	}

	return nil
}

// UpdateMessageBody replaces the body of a message.
func (d *DriverStub) UpdateMessageBody(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	fp, body string,
	updatedAt int64,
) (bool, error) {
	if d.UpdateMessageBodyFunc != nil {
		return d.UpdateMessageBodyFunc(ctx, db, t, fp, body, updatedAt)
	}

	if d.Driver != nil {
		return d.Driver.UpdateMessageBody(ctx, db, t, fp, body, updatedAt)
	}

	return false, nil
}

// SelectReadyIDs returns the IDs of queue entries that are ready for delivery.
func (d *DriverStub) SelectReadyIDs(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	now int64,
	n int,
) ([]string, error) {
	if d.SelectReadyIDsFunc != nil {
		return d.SelectReadyIDsFunc(ctx, db, t, now, n)
	}

	if d.Driver != nil {
		return d.Driver.SelectReadyIDs(ctx, db, t, now, n)
	}

	return nil, nil
}

// LockQueueEntries locks the unlocked queue entries with the given IDs.
func (d *DriverStub) LockQueueEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
	m persistence.LockMarker,
) (int64, error) {
	if d.LockQueueEntriesFunc != nil {
		return d.LockQueueEntriesFunc(ctx, db, t, ids, m)
	}

	if d.Driver != nil {
		return d.Driver.LockQueueEntries(ctx, db, t, ids, m)
	}

	return 0, nil
}

// SelectState returns the number of rows in each of a queue's tables.
func (d *DriverStub) SelectState(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	now int64,
) (persistence.State, error) {
	if d.SelectStateFunc != nil {
		return d.SelectStateFunc(ctx, db, t, now)
	}

	if d.Driver != nil {
		return d.Driver.SelectState(ctx, db, t, now)
	}

	return persistence.State{}, nil
}

// UpsertDeadLetter records a snapshot of a dead-lettered message.
func (d *DriverStub) UpsertDeadLetter(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	r persistence.DeadLetterRecord,
) error {
	if d.UpsertDeadLetterFunc != nil {
		return d.UpsertDeadLetterFunc(ctx, db, t, r)
	}

	if d.Driver != nil {
		return d.Driver.UpsertDeadLetter(ctx, db, t, r)
	}

	return nil
}
