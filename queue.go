package sqlqueue

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/internal/mlog"
	"github.com/dogmatiq/sqlqueue/internal/tracing"
	"github.com/dogmatiq/sqlqueue/internal/x/loggingx"
	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
	"github.com/dogmatiq/sqlqueue/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Queue is a durable work queue backed by an SQL database.
//
// Any number of Queue values, in any number of processes, may share the same
// named queue provided each has a distinct owner.
type Queue struct {
	name   string
	db     *sql.DB
	driver sqlpersistence.Driver
	tables persistence.Tables
	opts   *queueOptions
	logger logging.Logger
	tracer trace.Tracer

	// polls distinguishes the lock markers of concurrent polls made by this
	// instance within the same millisecond.
	polls atomic.Uint64
}

// New returns a queue with the given name, stored in db.
//
// The queue's tables are created if they do not already exist. The queue does
// not take ownership of db.
func New(
	ctx context.Context,
	db *sql.DB,
	name string,
	options ...Option,
) (*Queue, error) {
	if name == "" {
		return nil, fmt.Errorf("queue name must not be empty")
	}

	opts := resolveOptions(options...)

	q := &Queue{
		name:   name,
		db:     db,
		driver: opts.Driver,
		tables: persistence.NewTables(name, opts.SchemaVersion),
		opts:   opts,
		logger: loggingx.WithPrefix(opts.Logger, "[sqlqueue %s] ", name),
		tracer: opts.TracerProvider.Tracer(tracing.InstrumentationName),
	}

	if q.driver == nil {
		d, err := sqlpersistence.SelectDriver(ctx, db)
		if err != nil {
			return nil, err
		}
		q.driver = d
	}

	if err := q.write(ctx, func(ctx context.Context) error {
		return q.driver.CreateSchema(ctx, q.db, q.tables)
	}); err != nil {
		return nil, fmt.Errorf("unable to create schema for the '%s' queue: %w", name, err)
	}

	mlog.LogSystem(
		q.logger,
		"using %T, owner %s, ack timeout %s, lock ttl %s, max ack retries %d",
		q.driver,
		opts.Owner,
		opts.AckTimeout,
		opts.LockTTL,
		opts.MaxAckRetries,
	)

	return q, nil
}

// Name returns the name of the queue.
func (q *Queue) Name() string {
	return q.name
}

// Owner returns the identity the queue uses when claiming messages.
func (q *Queue) Owner() string {
	return q.opts.Owner
}

// Tables returns the names of the tables used by the queue.
func (q *Queue) Tables() persistence.Tables {
	return q.tables
}

// String returns a human-readable description of the queue.
func (q *Queue) String() string {
	return fmt.Sprintf("sqlqueue(%s)", q.name)
}

// now returns the current time according to the queue's clock.
func (q *Queue) now() time.Time {
	return q.opts.Now()
}

// write calls fn under the write retry budget.
func (q *Queue) write(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, q.opts.WriteRetry, q.driver.IsPermanent, fn)
}

// read calls fn under the read retry budget.
func (q *Queue) read(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, q.opts.ReadRetry, q.driver.IsPermanent, fn)
}

// withTx calls fn within a transaction, which is committed if fn returns nil.
func (q *Queue) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := q.driver.Begin(ctx, q.db)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// notify sends e to each of the queue's observers.
func (q *Queue) notify(e Event) {
	for _, o := range q.opts.Observers {
		o.Notify(e)
	}
}

// startSpan starts a span for a queue operation.
func (q *Queue) startSpan(
	ctx context.Context,
	name string,
	attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	attrs = append(
		attrs,
		tracing.QueueNameKey.String(q.name),
		tracing.QueueOwnerKey.String(q.opts.Owner),
	)

	return q.tracer.Start(
		ctx,
		"sqlqueue."+name,
		trace.WithAttributes(attrs...),
	)
}

// newID returns a new time-ordered row identifier.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// millis returns t as milliseconds since the Unix epoch.
func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// ackTimeout returns the lease duration to use for m.
func (q *Queue) ackTimeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}

	return q.opts.AckTimeout
}
