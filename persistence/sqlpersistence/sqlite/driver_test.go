//go:build cgo
// +build cgo

package sqlite_test

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/internal/testing/queuetest"
	. "github.com/dogmatiq/sqlqueue/persistence/sqlpersistence/sqlite"
	"github.com/dogmatiq/sqltest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type driver", func() {
	var (
		database *sqltest.Database
		db       *sql.DB
	)

	for _, pair := range sqltest.CompatiblePairs(sqltest.SQLite) {
		pair := pair

		queuetest.Declare(
			func(ctx context.Context, in queuetest.In) queuetest.Out {
				var err error
				database, err = sqltest.NewDatabase(ctx, pair.Driver, pair.Product)
				Expect(err).ShouldNot(HaveOccurred())

				db, err = database.Open()
				Expect(err).ShouldNot(HaveOccurred())

				// SQLite permits a single writer.
				db.SetMaxOpenConns(1)

				return queuetest.Out{
					DB:     db,
					Driver: Driver,
				}
			},
			func() {
				err := database.Close()
				Expect(err).ShouldNot(HaveOccurred())
			},
		)
	}
})

var _ = Describe("type driver (compatibility)", func() {
	Describe("func IsCompatibleWith()", func() {
		It("returns nil for a SQLite database", func() {
			ctx := context.Background()

			database, err := sqltest.NewDatabase(ctx, sqltest.SQLite3Driver, sqltest.SQLite)
			Expect(err).ShouldNot(HaveOccurred())
			defer database.Close()

			db, err := database.Open()
			Expect(err).ShouldNot(HaveOccurred())

			err = Driver.IsCompatibleWith(ctx, db)
			Expect(err).ShouldNot(HaveOccurred())
		})
	})
})
