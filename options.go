package sqlqueue

import (
	"context"
	"strings"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/message"
	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
	"github.com/dogmatiq/sqlqueue/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	// DefaultAckTimeout is the default duration a worker has to acknowledge a
	// message before it is returned to the queue.
	//
	// It is overridden by the WithAckTimeout() option, and by a message's own
	// AckTimeout.
	DefaultAckTimeout = 5 * time.Minute

	// DefaultLockTTL is the default duration after which a claim on a queue
	// entry that never became in-flight is considered stale. It is also the
	// delay before a message whose lease expired is redelivered.
	//
	// It is overridden by the WithLockTTL() option.
	DefaultLockTTL = 1 * time.Minute

	// DefaultRetryInterval is the default interval at which Run() sweeps for
	// expired leases and stale locks.
	//
	// It is overridden by the WithRetryInterval() option.
	DefaultRetryInterval = 10 * time.Second

	// DefaultCleanupInterval is the default interval at which Run() removes
	// orphaned message bodies.
	//
	// It is overridden by the WithCleanupInterval() option.
	DefaultCleanupInterval = 2 * time.Second

	// DefaultMaxAckRetries is the default number of times a message's lease
	// may expire before it is dead-lettered.
	//
	// It is overridden by the WithMaxAckRetries() option.
	DefaultMaxAckRetries = 5

	// DefaultMaxClaimPasses is the default number of conditional updates made
	// by a single poll when attempting to claim messages.
	//
	// It is overridden by the WithMaxClaimPasses() option.
	DefaultMaxClaimPasses = 3

	// DefaultLogger is the default target for log messages produced by the
	// queue.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

const (
	// CleanupBatchSize is the maximum number of message bodies inspected by
	// a single call to CleanupMessages().
	CleanupBatchSize = 2000

	// cleanupCandidateLimit is the maximum number of orphaned bodies deleted by
	// a single call to CleanupMessages().
	cleanupCandidateLimit = 1000

	// cleanupChunkSize is the number of bodies deleted by each statement.
	cleanupChunkSize = 100

	// pollChunkSize is the number of queue entries deleted or released by each
	// statement at the end of a poll.
	pollChunkSize = 4

	// scanBatchSize is the number of bodies read by each statement within
	// ContainsMessage().
	scanBatchSize = 100
)

// DeadMessageCallback is a function that is invoked when a message is
// dead-lettered.
type DeadMessageCallback func(ctx context.Context, queue string, m message.Message)

// Option configures the behavior of a queue.
type Option func(*queueOptions)

// WithDriver returns an option that sets the SQL driver used to access the
// database.
//
// If this option is omitted or d is nil, a compatible driver is chosen
// automatically from the built-in drivers.
func WithDriver(d sqlpersistence.Driver) Option {
	return func(opts *queueOptions) {
		opts.Driver = d
	}
}

// WithAckTimeout returns an option that sets the default duration a worker has
// to acknowledge a message.
//
// If this option is omitted or d is zero, DefaultAckTimeout is used.
func WithAckTimeout(d time.Duration) Option {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *queueOptions) {
		opts.AckTimeout = d
	}
}

// WithLockTTL returns an option that sets the duration after which a stale
// claim is released.
//
// If this option is omitted or d is zero, DefaultLockTTL is used.
func WithLockTTL(d time.Duration) Option {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *queueOptions) {
		opts.LockTTL = d
	}
}

// WithRetryInterval returns an option that sets the interval at which Run()
// sweeps for expired leases and stale locks.
//
// If this option is omitted or d is zero, DefaultRetryInterval is used.
func WithRetryInterval(d time.Duration) Option {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *queueOptions) {
		opts.RetryInterval = d
	}
}

// WithCleanupInterval returns an option that sets the interval at which Run()
// removes orphaned message bodies.
//
// If this option is omitted or d is zero, DefaultCleanupInterval is used.
func WithCleanupInterval(d time.Duration) Option {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *queueOptions) {
		opts.CleanupInterval = d
	}
}

// WithCleanupAge returns an option that sets how long an orphaned message body
// is retained before it is removed.
//
// If this option is omitted or d is zero, twice the acknowledgement timeout is
// used.
func WithCleanupAge(d time.Duration) Option {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *queueOptions) {
		opts.CleanupAge = d
	}
}

// WithMaxAckRetries returns an option that sets the number of times a
// message's lease may expire before it is dead-lettered.
//
// If this option is omitted or n is zero, DefaultMaxAckRetries is used.
func WithMaxAckRetries(n int) Option {
	if n < 0 {
		panic("max ack retries must not be negative")
	}

	return func(opts *queueOptions) {
		opts.MaxAckRetries = n
	}
}

// WithMaxClaimPasses returns an option that sets the number of conditional
// updates made by a single poll when attempting to claim messages.
//
// If this option is omitted or n is zero, DefaultMaxClaimPasses is used.
func WithMaxClaimPasses(n int) Option {
	if n < 0 {
		panic("max claim passes must not be negative")
	}

	return func(opts *queueOptions) {
		opts.MaxClaimPasses = n
	}
}

// WithSchemaVersion returns an option that sets the version number embedded
// in the queue's table names.
//
// If this option is omitted or v is zero, persistence.DefaultSchemaVersion is
// used.
func WithSchemaVersion(v int) Option {
	if v < 0 {
		panic("schema version must not be negative")
	}

	return func(opts *queueOptions) {
		opts.SchemaVersion = v
	}
}

// WithOwner returns an option that sets the identity the queue uses when
// claiming messages.
//
// Every queue instance that shares a database must have a distinct owner. If
// this option is omitted or owner is empty, a random identity is used.
func WithOwner(owner string) Option {
	return func(opts *queueOptions) {
		opts.Owner = owner
	}
}

// WithClock returns an option that sets the function used to obtain the
// current time.
//
// If this option is omitted or now is nil, time.Now is used.
func WithClock(now func() time.Time) Option {
	return func(opts *queueOptions) {
		opts.Now = now
	}
}

// WithMigrator returns an option that sets the migrator applied to every
// message body read from the database.
func WithMigrator(m message.Migrator) Option {
	return func(opts *queueOptions) {
		opts.Migrator = m
	}
}

// WithDeadMessageCallback returns an option that adds a function to be called
// whenever a message is dead-lettered.
//
// It may be specified multiple times.
func WithDeadMessageCallback(fn DeadMessageCallback) Option {
	return func(opts *queueOptions) {
		if fn != nil {
			opts.DeadMessageCallbacks = append(opts.DeadMessageCallbacks, fn)
		}
	}
}

// WithObserver returns an option that adds an observer to be notified of
// queue events.
//
// It may be specified multiple times.
func WithObserver(o Observer) Option {
	return func(opts *queueOptions) {
		if o != nil {
			opts.Observers = append(opts.Observers, o)
		}
	}
}

// WithReadRetryBudget returns an option that sets the retry budget used for
// operations that only read from the database.
//
// If this option is omitted or b has no attempts, retry.DefaultReadBudget is
// used.
func WithReadRetryBudget(b retry.Budget) Option {
	return func(opts *queueOptions) {
		opts.ReadRetry = b
	}
}

// WithWriteRetryBudget returns an option that sets the retry budget used for
// operations that modify the database.
//
// If this option is omitted or b has no attempts, retry.DefaultWriteBudget is
// used.
func WithWriteRetryBudget(b retry.Budget) Option {
	return func(opts *queueOptions) {
		opts.WriteRetry = b
	}
}

// WithLogger returns an option that sets the target for log messages produced
// by the queue.
//
// If this option is omitted or l is nil, DefaultLogger is used.
func WithLogger(l logging.Logger) Option {
	return func(opts *queueOptions) {
		opts.Logger = l
	}
}

// WithTracerProvider returns an option that sets the provider of the tracer
// used to record spans for queue operations.
//
// If this option is omitted or tp is nil, the global tracer provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(opts *queueOptions) {
		opts.TracerProvider = tp
	}
}

// queueOptions is a container for a fully-resolved set of queue options.
type queueOptions struct {
	Driver               sqlpersistence.Driver
	AckTimeout           time.Duration
	LockTTL              time.Duration
	RetryInterval        time.Duration
	CleanupInterval      time.Duration
	CleanupAge           time.Duration
	MaxAckRetries        int
	MaxClaimPasses       int
	SchemaVersion        int
	Owner                string
	Now                  func() time.Time
	Migrator             message.Migrator
	DeadMessageCallbacks []DeadMessageCallback
	Observers            []Observer
	ReadRetry            retry.Budget
	WriteRetry           retry.Budget
	Logger               logging.Logger
	TracerProvider       trace.TracerProvider
}

// resolveOptions returns a fully-populated set of queue options built from the
// given set of option functions.
func resolveOptions(options ...Option) *queueOptions {
	opts := &queueOptions{}

	for _, o := range options {
		o(opts)
	}

	if opts.AckTimeout == 0 {
		opts.AckTimeout = DefaultAckTimeout
	}

	if opts.LockTTL == 0 {
		opts.LockTTL = DefaultLockTTL
	}

	if opts.RetryInterval == 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}

	if opts.CleanupAge == 0 {
		opts.CleanupAge = 2 * opts.AckTimeout
	}

	if opts.MaxAckRetries == 0 {
		opts.MaxAckRetries = DefaultMaxAckRetries
	}

	if opts.MaxClaimPasses == 0 {
		opts.MaxClaimPasses = DefaultMaxClaimPasses
	}

	if opts.SchemaVersion == 0 {
		opts.SchemaVersion = persistence.DefaultSchemaVersion
	}

	if opts.Owner == "" {
		opts.Owner = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.ReadRetry.Attempts == 0 {
		opts.ReadRetry = retry.DefaultReadBudget
	}

	if opts.WriteRetry.Attempts == 0 {
		opts.WriteRetry = retry.DefaultWriteBudget
	}

	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return opts
}
