package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/go-sql-driver/mysql"
)

// Driver is an implementation of sqlpersistence.Driver for MySQL and
// compatible databases such as MariaDB.
var Driver driver

type driver struct{}

// notSupportedYet is the MySQL error number for ER_NOT_SUPPORTED_YET.
const notSupportedYet = 1235

// IsCompatibleWith returns nil if this driver can be used with db.
func (driver) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	// Verify that ?-style placeholders are supported.
	err := db.QueryRowContext(
		ctx,
		`SELECT ?`,
		1,
	).Err()

	if err != nil {
		return err
	}

	// Verify that we're using something compatible with MySQL (because the SHOW
	// VARIABLES syntax is supported) and that InnoDB is available.
	return db.QueryRowContext(
		ctx,
		`SHOW VARIABLES LIKE "innodb_page_size"`,
	).Err()
}

// Begin starts a transaction.
func (driver) Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}

// IsPermanent returns true if err can never succeed on retry.
func (driver) IsPermanent(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == notSupportedYet
	}

	return errors.Is(err, persistence.ErrUnsupported)
}
