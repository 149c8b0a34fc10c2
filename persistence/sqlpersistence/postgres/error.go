package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dogmatiq/sqlqueue/persistence"
)

// convertErrors converts native PostgreSQL errors into their portable
// equivalents.
//
// "query_canceled" errors are converted into a context.Canceled or
// DeadlineExceeded error. The "pq" postgres driver appears to prefer
// returning its own error if the context is canceled after a query is
// already started.
//
// See https://github.com/lib/pq/blob/master/go18_test.go#L90
//
// "feature_not_supported" errors are wrapped so that they match
// persistence.ErrUnsupported.
func convertErrors(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		if strings.Contains(err.Error(), "canceling statement due to user request") {
			return ctx.Err()
		}
	}

	if isFeatureNotSupported(err) && !errors.Is(err, persistence.ErrUnsupported) {
		return persistence.UnsupportedError{Cause: err}
	}

	return err
}

// errorConverter is an implementation of sqlpersistence.Driver that decorates
// the PostgreSQL driver in order to convert native errors into portable ones.
//
// The error conversion is implemented this way so that conversions don't get
// missed when new methods are added to the sqlpersistence.Driver interface.
type errorConverter struct {
	d driver
}

func (d errorConverter) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	err := d.d.IsCompatibleWith(ctx, db)
	return convertErrors(ctx, err)
}

func (d errorConverter) Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	tx, err := d.d.Begin(ctx, db)
	return tx, convertErrors(ctx, err)
}

func (d errorConverter) CreateSchema(ctx context.Context, db *sql.DB, t persistence.Tables) error {
	err := d.d.CreateSchema(ctx, db, t)
	return convertErrors(ctx, err)
}

func (d errorConverter) DropSchema(ctx context.Context, db *sql.DB, t persistence.Tables) error {
	err := d.d.DropSchema(ctx, db, t)
	return convertErrors(ctx, err)
}

func (d errorConverter) SelectState(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	now int64,
) (persistence.State, error) {
	s, err := d.d.SelectState(ctx, db, t, now)
	return s, convertErrors(ctx, err)
}

func (d errorConverter) IsPermanent(err error) bool {
	return d.d.IsPermanent(err)
}

//
// message
//

func (d errorConverter) UpsertMessage(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	r persistence.MessageRecord,
) error {
	err := d.d.UpsertMessage(ctx, db, t, r)
	return convertErrors(ctx, err)
}

func (d errorConverter) UpdateMessageBody(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	fp, body string,
	updatedAt int64,
) (bool, error) {
	ok, err := d.d.UpdateMessageBody(ctx, db, t, fp, body, updatedAt)
	return ok, convertErrors(ctx, err)
}

func (d errorConverter) TouchMessage(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	fp string,
	updatedAt int64,
) error {
	err := d.d.TouchMessage(ctx, db, t, fp, updatedAt)
	return convertErrors(ctx, err)
}

func (d errorConverter) PurgeFingerprint(
	ctx context.Context,
	tx *sql.Tx,
	t persistence.Tables,
	fp string,
) error {
	err := d.d.PurgeFingerprint(ctx, tx, t, fp)
	return convertErrors(ctx, err)
}

func (d errorConverter) SelectOrphanCandidates(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	before int64,
	desc bool,
	n int,
) ([]persistence.OrphanCandidate, error) {
	c, err := d.d.SelectOrphanCandidates(ctx, db, t, before, desc, n)
	return c, convertErrors(ctx, err)
}

func (d errorConverter) DeleteMessages(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
	before int64,
) (int64, error) {
	n, err := d.d.DeleteMessages(ctx, db, t, ids, before)
	return n, convertErrors(ctx, err)
}

func (d errorConverter) SelectMessages(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	afterID string,
	n int,
) ([]persistence.MessageRecord, error) {
	r, err := d.d.SelectMessages(ctx, db, t, afterID, n)
	return r, convertErrors(ctx, err)
}

//
// queue
//

func (d errorConverter) UpsertQueueEntry(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	e persistence.QueueEntry,
) error {
	err := d.d.UpsertQueueEntry(ctx, db, t, e)
	return convertErrors(ctx, err)
}

func (d errorConverter) UpdateDelivery(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	fp string,
	delivery int64,
) (bool, error) {
	ok, err := d.d.UpdateDelivery(ctx, db, t, fp, delivery)
	return ok, convertErrors(ctx, err)
}

func (d errorConverter) IsQueuedOrUnacked(
	ctx context.Context,
	db persistence.DB,
	t persistence.Tables,
	fp string,
) (bool, error) {
	ok, err := d.d.IsQueuedOrUnacked(ctx, db, t, fp)
	return ok, convertErrors(ctx, err)
}

func (d errorConverter) SelectReadyIDs(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	now int64,
	n int,
) ([]string, error) {
	ids, err := d.d.SelectReadyIDs(ctx, db, t, now, n)
	return ids, convertErrors(ctx, err)
}

func (d errorConverter) LockQueueEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
	m persistence.LockMarker,
) (int64, error) {
	n, err := d.d.LockQueueEntries(ctx, db, t, ids, m)
	return n, convertErrors(ctx, err)
}

func (d errorConverter) SelectClaimedEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	m persistence.LockMarker,
) ([]persistence.ClaimedEntry, error) {
	e, err := d.d.SelectClaimedEntries(ctx, db, t, m)
	return e, convertErrors(ctx, err)
}

func (d errorConverter) DeleteQueueEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
) error {
	err := d.d.DeleteQueueEntries(ctx, db, t, ids)
	return convertErrors(ctx, err)
}

func (d errorConverter) UnlockQueueEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	ids []string,
) error {
	err := d.d.UnlockQueueEntries(ctx, db, t, ids)
	return convertErrors(ctx, err)
}

func (d errorConverter) SelectLockedEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
) ([]persistence.QueueEntry, error) {
	e, err := d.d.SelectLockedEntries(ctx, db, t)
	return e, convertErrors(ctx, err)
}

func (d errorConverter) DeleteLockedEntry(
	ctx context.Context,
	tx *sql.Tx,
	t persistence.Tables,
	id string,
	m persistence.LockMarker,
) (bool, error) {
	ok, err := d.d.DeleteLockedEntry(ctx, tx, t, id, m)
	return ok, convertErrors(ctx, err)
}

//
// unacked
//

func (d errorConverter) InsertUnacked(
	ctx context.Context,
	tx *sql.Tx,
	t persistence.Tables,
	e persistence.UnackedEntry,
) (bool, error) {
	ok, err := d.d.InsertUnacked(ctx, tx, t, e)
	return ok, convertErrors(ctx, err)
}

func (d errorConverter) DeleteUnacked(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	fp string,
) error {
	err := d.d.DeleteUnacked(ctx, db, t, fp)
	return convertErrors(ctx, err)
}

func (d errorConverter) DeleteUnackedByID(
	ctx context.Context,
	tx *sql.Tx,
	t persistence.Tables,
	id string,
) (bool, error) {
	ok, err := d.d.DeleteUnackedByID(ctx, tx, t, id)
	return ok, convertErrors(ctx, err)
}

func (d errorConverter) SelectExpiredEntries(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	now int64,
) ([]persistence.ExpiredEntry, error) {
	e, err := d.d.SelectExpiredEntries(ctx, db, t, now)
	return e, convertErrors(ctx, err)
}

//
// dead-letter
//

func (d errorConverter) UpsertDeadLetter(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	r persistence.DeadLetterRecord,
) error {
	err := d.d.UpsertDeadLetter(ctx, db, t, r)
	return convertErrors(ctx, err)
}

func (d errorConverter) SelectDeadLetter(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	fp string,
) (persistence.DeadLetterRecord, bool, error) {
	r, ok, err := d.d.SelectDeadLetter(ctx, db, t, fp)
	return r, ok, convertErrors(ctx, err)
}
