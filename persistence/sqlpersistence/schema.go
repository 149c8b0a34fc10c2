package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/persistence"
)

// CreateSchema creates the tables used by a queue in the given database.
//
// It does not return an error if the tables already exist.
func CreateSchema(ctx context.Context, db *sql.DB, t persistence.Tables) error {
	d, err := SelectDriver(ctx, db)
	if err != nil {
		return err
	}

	return d.CreateSchema(ctx, db, t)
}

// DropSchema drops the tables used by a queue from the given database.
//
// It does not return an error if the tables do not exist.
func DropSchema(ctx context.Context, db *sql.DB, t persistence.Tables) error {
	d, err := SelectDriver(ctx, db)
	if err != nil {
		return err
	}

	return d.DropSchema(ctx, db, t)
}
