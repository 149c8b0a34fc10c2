package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dogmatiq/sqlqueue/internal/x/sqlx"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// SelectState returns the number of rows in each of a queue's tables.
func (driver) SelectState(
	ctx context.Context,
	db *sql.DB,
	t persistence.Tables,
	now int64,
) (_ persistence.State, err error) {
	defer sqlx.Recover(&err)

	var depth, ready, unacked, messages int

	sqlx.QueryInto(
		ctx,
		db,
		[]interface{}{&depth, &ready, &unacked, &messages},
		fmt.Sprintf(
			`SELECT
				(SELECT COUNT(*) FROM %s),
				(SELECT COUNT(*) FROM %s WHERE delivery <= $1),
				(SELECT COUNT(*) FROM %s),
				(SELECT COUNT(*) FROM %s)`,
			t.Queue,
			t.Queue,
			t.Unacked,
			t.Messages,
		),
		now,
	)

	return persistence.NewState(depth, ready, unacked, messages), nil
}
