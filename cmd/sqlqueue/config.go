package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/dogmatiq/sqlqueue"
	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// envPrefix is the prefix of the environment variables that configure the
// tool.
const envPrefix = "SQLQUEUE"

// config is the tool's configuration, read from flags, the environment and
// an optional .env file, in that order of precedence.
type config struct {
	Driver          string
	DSN             string
	Queue           string
	SchemaVersion   int
	LogLevel        zapcore.Level
	MetricsAddr     string
	AckTimeout      time.Duration
	LockTTL         time.Duration
	RetryInterval   time.Duration
	CleanupInterval time.Duration
	CleanupAge      time.Duration
	MaxAckRetries   int
	MaxOpenConns    int
}

// addConfigFlags adds the flags that override the configuration to flags.
func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("driver", "pgx", "the database/sql driver name (pgx, mysql or sqlite3)")
	flags.String("dsn", "", "the data-source name of the database")
	flags.String("queue", "", "the name of the queue")
	flags.Int("schema-version", persistence.DefaultSchemaVersion, "the version used to name the queue's tables")
	flags.String("log-level", "info", "the minimum level of log messages (debug, info, warn or error)")
	flags.String("metrics-addr", ":9090", "the address on which serve exposes prometheus metrics")
	flags.Duration("ack-timeout", sqlqueue.DefaultAckTimeout, "the duration a worker has to acknowledge a message")
	flags.Duration("lock-ttl", sqlqueue.DefaultLockTTL, "the duration after which a stale claim is released")
	flags.Duration("retry-interval", sqlqueue.DefaultRetryInterval, "the interval between lease sweeps")
	flags.Duration("cleanup-interval", sqlqueue.DefaultCleanupInterval, "the interval between cleanup passes")
	flags.Duration("cleanup-age", 0, "the minimum age of a removable message body (default twice the ack timeout)")
	flags.Int("max-ack-retries", sqlqueue.DefaultMaxAckRetries, "the number of lease expiries after which a message is dead-lettered")
	flags.Int("max-open-conns", 0, "the maximum number of open database connections (default depends on the CPU count)")
}

// newViper returns a viper instance that reads the configuration from flags
// and the environment.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to load .env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	return v, nil
}

// loadConfig reads the configuration from v.
func loadConfig(v *viper.Viper) (config, error) {
	level, err := zapcore.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return config{}, err
	}

	cfg := config{
		Driver:          v.GetString("driver"),
		DSN:             v.GetString("dsn"),
		Queue:           v.GetString("queue"),
		SchemaVersion:   v.GetInt("schema-version"),
		LogLevel:        level,
		MetricsAddr:     v.GetString("metrics-addr"),
		AckTimeout:      v.GetDuration("ack-timeout"),
		LockTTL:         v.GetDuration("lock-ttl"),
		RetryInterval:   v.GetDuration("retry-interval"),
		CleanupInterval: v.GetDuration("cleanup-interval"),
		CleanupAge:      v.GetDuration("cleanup-age"),
		MaxAckRetries:   v.GetInt("max-ack-retries"),
		MaxOpenConns:    v.GetInt("max-open-conns"),
	}

	if cfg.DSN == "" {
		return config{}, fmt.Errorf("a data-source name must be provided via --dsn or %s_DSN", envPrefix)
	}

	if cfg.SchemaVersion <= 0 {
		return config{}, fmt.Errorf("schema version must be positive, got %d", cfg.SchemaVersion)
	}

	return cfg, nil
}

// pool returns the configuration of the database pool.
func (c config) pool() sqlpersistence.PoolConfig {
	return sqlpersistence.PoolConfig{
		DriverName:   c.Driver,
		DSN:          c.DSN,
		MaxOpenConns: c.MaxOpenConns,
	}
}

// tables returns the table names of the queue with the given name.
func (c config) tables(name string) persistence.Tables {
	return persistence.NewTables(name, c.SchemaVersion)
}

// logger returns a zap logger that writes messages at or above the
// configured level.
func (c config) logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(c.LogLevel)
	return zc.Build()
}

// queueOptions returns the options used to open queues.
func (c config) queueOptions() []sqlqueue.Option {
	return []sqlqueue.Option{
		sqlqueue.WithAckTimeout(c.AckTimeout),
		sqlqueue.WithLockTTL(c.LockTTL),
		sqlqueue.WithRetryInterval(c.RetryInterval),
		sqlqueue.WithCleanupInterval(c.CleanupInterval),
		sqlqueue.WithCleanupAge(c.CleanupAge),
		sqlqueue.WithMaxAckRetries(c.MaxAckRetries),
		sqlqueue.WithSchemaVersion(c.SchemaVersion),
	}
}
