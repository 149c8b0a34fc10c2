package main

import (
	"time"

	"github.com/dogmatiq/sqlqueue"
	"github.com/dogmatiq/sqlqueue/persistence"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

var _ = Describe("func loadConfig()", func() {
	var (
		flags *pflag.FlagSet
		v     *viper.Viper
	)

	BeforeEach(func() {
		flags = pflag.NewFlagSet("<test>", pflag.ContinueOnError)
		addConfigFlags(flags)

		var err error
		v, err = newViper(flags)
		Expect(err).ShouldNot(HaveOccurred())
	})

	It("uses the queue defaults when only a DSN is given", func() {
		Expect(flags.Parse([]string{"--dsn", "<dsn>"})).To(Succeed())

		cfg, err := loadConfig(v)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(cfg).To(Equal(config{
			Driver:          "pgx",
			DSN:             "<dsn>",
			SchemaVersion:   persistence.DefaultSchemaVersion,
			LogLevel:        zapcore.InfoLevel,
			MetricsAddr:     ":9090",
			AckTimeout:      sqlqueue.DefaultAckTimeout,
			LockTTL:         sqlqueue.DefaultLockTTL,
			RetryInterval:   sqlqueue.DefaultRetryInterval,
			CleanupInterval: sqlqueue.DefaultCleanupInterval,
			MaxAckRetries:   sqlqueue.DefaultMaxAckRetries,
		}))
	})

	It("reads values from the environment", func() {
		GinkgoT().Setenv("SQLQUEUE_DSN", "<env-dsn>")
		GinkgoT().Setenv("SQLQUEUE_QUEUE", "<queue>")
		GinkgoT().Setenv("SQLQUEUE_ACK_TIMEOUT", "90s")
		GinkgoT().Setenv("SQLQUEUE_MAX_ACK_RETRIES", "7")
		GinkgoT().Setenv("SQLQUEUE_LOG_LEVEL", "debug")

		cfg, err := loadConfig(v)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(cfg.DSN).To(Equal("<env-dsn>"))
		Expect(cfg.Queue).To(Equal("<queue>"))
		Expect(cfg.AckTimeout).To(Equal(90 * time.Second))
		Expect(cfg.MaxAckRetries).To(Equal(7))
		Expect(cfg.LogLevel).To(Equal(zapcore.DebugLevel))
	})

	It("prefers flags over the environment", func() {
		GinkgoT().Setenv("SQLQUEUE_DSN", "<env-dsn>")
		Expect(flags.Parse([]string{"--dsn", "<flag-dsn>"})).To(Succeed())

		cfg, err := loadConfig(v)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(cfg.DSN).To(Equal("<flag-dsn>"))
	})

	It("returns an error if no DSN is given", func() {
		_, err := loadConfig(v)
		Expect(err).To(MatchError("a data-source name must be provided via --dsn or SQLQUEUE_DSN"))
	})

	It("returns an error if the log level is not recognized", func() {
		Expect(flags.Parse([]string{"--dsn", "<dsn>", "--log-level", "<level>"})).To(Succeed())

		_, err := loadConfig(v)
		Expect(err).Should(HaveOccurred())
	})

	It("returns an error if the schema version is not positive", func() {
		Expect(flags.Parse([]string{"--dsn", "<dsn>", "--schema-version", "0"})).To(Succeed())

		_, err := loadConfig(v)
		Expect(err).To(MatchError("schema version must be positive, got 0"))
	})
})

var _ = Describe("type config", func() {
	It("applies the configured pool limits", func() {
		cfg := config{Driver: "<driver>", DSN: "<dsn>", MaxOpenConns: 3}

		Expect(cfg.pool().DriverName).To(Equal("<driver>"))
		Expect(cfg.pool().DSN).To(Equal("<dsn>"))
		Expect(cfg.pool().MaxOpenConns).To(Equal(3))
	})

	It("names tables using the configured schema version", func() {
		cfg := config{SchemaVersion: 2}
		Expect(cfg.tables("orders")).To(Equal(persistence.NewTables("orders", 2)))
	})
})
