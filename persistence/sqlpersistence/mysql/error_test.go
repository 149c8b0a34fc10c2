package mysql_test

import (
	"errors"
	"fmt"

	"github.com/dogmatiq/sqlqueue/persistence"
	. "github.com/dogmatiq/sqlqueue/persistence/sqlpersistence/mysql"
	"github.com/go-sql-driver/mysql"
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
			"ER_NOT_SUPPORTED_YET",
			&mysql.MySQLError{Number: 1235},
			true,
		),
		Entry(
			"wrapped ER_NOT_SUPPORTED_YET",
			fmt.Errorf("<context>: %w", &mysql.MySQLError{Number: 1235}),
			true,
		),
		Entry(
			"unsupported error",
			persistence.UnsupportedError{Cause: errors.New("<error>")},
			true,
		),
		Entry(
			"ER_LOCK_DEADLOCK",
			&mysql.MySQLError{Number: 1213},
			false,
		),
		Entry(
			"other error",
			errors.New("<error>"),
			false,
		),
	)
})
