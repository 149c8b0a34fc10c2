//go:build cgo
// +build cgo

package sqlpersistence_test

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/sqlqueue/persistence"
	. "github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
	"github.com/dogmatiq/sqltest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func CreateSchema()", func() {
	var (
		ctx      context.Context
		database *sqltest.Database
		db       *sql.DB
		tables   persistence.Tables
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		database, err = sqltest.NewDatabase(ctx, sqltest.SQLite3Driver, sqltest.SQLite)
		Expect(err).ShouldNot(HaveOccurred())

		db, err = database.Open()
		Expect(err).ShouldNot(HaveOccurred())

		tables = persistence.NewTables("<queue>", persistence.DefaultSchemaVersion)
	})

	AfterEach(func() {
		err := database.Close()
		Expect(err).ShouldNot(HaveOccurred())
	})

	countRows := func(table string) int {
		var n int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
		Expect(err).ShouldNot(HaveOccurred())
		return n
	}

	It("creates each of the queue's tables", func() {
		err := CreateSchema(ctx, db, tables)
		Expect(err).ShouldNot(HaveOccurred())

		Expect(countRows(tables.Queue)).To(Equal(0))
		Expect(countRows(tables.Unacked)).To(Equal(0))
		Expect(countRows(tables.Messages)).To(Equal(0))
		Expect(countRows(tables.DeadLetter)).To(Equal(0))
	})

	It("does not return an error if the tables already exist", func() {
		err := CreateSchema(ctx, db, tables)
		Expect(err).ShouldNot(HaveOccurred())

		err = CreateSchema(ctx, db, tables)
		Expect(err).ShouldNot(HaveOccurred())
	})

	Describe("func DropSchema()", func() {
		It("removes each of the queue's tables", func() {
			err := CreateSchema(ctx, db, tables)
			Expect(err).ShouldNot(HaveOccurred())

			err = DropSchema(ctx, db, tables)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = db.ExecContext(ctx, "SELECT * FROM "+tables.Queue)
			Expect(err).To(HaveOccurred())
		})

		It("does not return an error if the tables do not exist", func() {
			err := DropSchema(ctx, db, tables)
			Expect(err).ShouldNot(HaveOccurred())
		})
	})
})
