package postgres_test

import (
	"errors"
	"fmt"

	"github.com/dogmatiq/sqlqueue/persistence"
	. "github.com/dogmatiq/sqlqueue/persistence/sqlpersistence/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func IsPermanent()", func() {
	DescribeTable(
		"it classifies errors",
		func(err error, expect bool) {
			Expect(Driver.IsPermanent(err)).To(Equal(expect))
		},
		Entry(
			"pgx feature_not_supported",
			&pgconn.PgError{Code: "0A000"},
			true,
		),
		Entry(
			"wrapped pgx feature_not_supported",
			fmt.Errorf("<context>: %w", &pgconn.PgError{Code: "0A000"}),
			true,
		),
		Entry(
			"pq feature_not_supported",
			&pq.Error{Code: "0A000"},
			true,
		),
		Entry(
			"unsupported error",
			persistence.UnsupportedError{Cause: errors.New("<error>")},
			true,
		),
		Entry(
			"pgx serialization_failure",
			&pgconn.PgError{Code: "40001"},
			false,
		),
		Entry(
			"pq unique_violation",
			&pq.Error{Code: "23505"},
			false,
		),
		Entry(
			"other error",
			errors.New("<error>"),
			false,
		),
	)
})
