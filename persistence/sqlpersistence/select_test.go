//go:build cgo
// +build cgo

package sqlpersistence_test

import (
	"context"
	"database/sql"

	. "github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence/sqlite"
	"github.com/dogmatiq/sqltest"
	"github.com/dogmatiq/sqltest/sqlstub"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/multierr"
)

var _ = Describe("func SelectDriver()", func() {
	It("returns the driver that is compatible with the database", func() {
		ctx := context.Background()

		database, err := sqltest.NewDatabase(ctx, sqltest.SQLite3Driver, sqltest.SQLite)
		Expect(err).ShouldNot(HaveOccurred())
		defer database.Close()

		db, err := database.Open()
		Expect(err).ShouldNot(HaveOccurred())

		d, err := SelectDriver(ctx, db)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(d).To(Equal(sqlite.Driver))
	})

	It("returns an error if a compatible driver can not be found", func() {
		db := sql.OpenDB(&sqlstub.Connector{})
		defer db.Close()

		_, err := SelectDriver(context.Background(), db)

		expect := "could not find a driver that is compatible with *sqlstub.Driver"
		for _, e := range multierr.Errors(err) {
			if e.Error() == expect {
				return
			}
		}

		Expect(err).To(MatchError(expect))
	})
})
