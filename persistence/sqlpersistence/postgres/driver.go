package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Driver is an implementation of sqlpersistence.Driver for PostgreSQL.
var Driver errorConverter

type driver struct{}

// featureNotSupported is the SQLSTATE code returned by PostgreSQL when a
// statement uses a feature it does not support.
const featureNotSupported = "0A000"

// IsCompatibleWith returns nil if this driver can be used with db.
func (driver) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	// Verify that we're using PostgreSQL and that $1-style placeholders are
	// supported.
	return db.QueryRowContext(
		ctx,
		`SELECT pg_backend_pid() WHERE 1 = $1`,
		1,
	).Err()
}

// Begin starts a transaction.
func (driver) Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}

// IsPermanent returns true if err can never succeed on retry.
func (driver) IsPermanent(err error) bool {
	return isFeatureNotSupported(err) ||
		errors.Is(err, persistence.ErrUnsupported)
}

// isFeatureNotSupported returns true if err is a native "feature_not_supported"
// error from either the pgx or pq drivers.
func isFeatureNotSupported(err error) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == featureNotSupported
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == featureNotSupported
	}

	return false
}
