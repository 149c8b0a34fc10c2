//go:build cgo
// +build cgo

package sqlpersistence_test

import (
	"context"

	. "github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
	"github.com/dogmatiq/sqltest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type PoolConfig", func() {
	Describe("func Open()", func() {
		It("opens a pool with the configured limits", func() {
			ctx := context.Background()

			database, err := sqltest.NewDatabase(ctx, sqltest.SQLite3Driver, sqltest.SQLite)
			Expect(err).ShouldNot(HaveOccurred())
			defer database.Close()

			cfg := PoolConfig{
				DriverName:   database.DataSource.DriverName(),
				DSN:          database.DataSource.DSN(),
				MaxOpenConns: 3,
			}

			db, err := cfg.Open()
			Expect(err).ShouldNot(HaveOccurred())
			defer db.Close()

			err = db.PingContext(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(db.Stats().MaxOpenConnections).To(Equal(3))
		})

		It("returns an error if the DB can not be opened", func() {
			cfg := PoolConfig{
				DriverName: "<nonsense-driver>",
				DSN:        "<nonsense-dsn>",
			}

			db, err := cfg.Open()
			if db != nil {
				db.Close()
			}
			Expect(err).Should(HaveOccurred())
		})
	})

	Context("var DefaultMaxIdleConns", func() {
		It("is not zero", func() {
			Expect(DefaultMaxIdleConns).To(BeNumerically(">", 0))
		})
	})

	Context("var DefaultMaxOpenConns", func() {
		It("is larger than DefaultMaxIdleConns", func() {
			Expect(DefaultMaxOpenConns).To(BeNumerically(">", DefaultMaxIdleConns))
		})
	})

	Context("var DefaultMaxConnLifetime", func() {
		It("is not zero", func() {
			Expect(DefaultMaxConnLifetime).To(BeNumerically(">", 0))
		})
	})
})
