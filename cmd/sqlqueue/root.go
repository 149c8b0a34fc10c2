package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dogmatiq/sqlqueue"
	"github.com/dogmatiq/sqlqueue/internal/x/loggingx"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// env is the environment shared by the tool's commands.
type env struct {
	cfg    config
	db     *sql.DB
	logger *zap.Logger
}

// newRootCommand returns the tool's root command.
func newRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "sqlqueue",
		Short:         "Operate durable work queues stored in an SQL database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return e.close()
		},
	}

	root.CompletionOptions.DisableDefaultCmd = true
	addConfigFlags(root.PersistentFlags())

	root.AddCommand(
		newSchemaCommand(e),
		newStateCommand(e),
		newPushCommand(e),
		newDeadCommand(e),
		newRetryCommand(e),
		newCleanupCommand(e),
		newServeCommand(e),
	)

	return root
}

// open loads the configuration and opens the database pool.
func (e *env) open(cmd *cobra.Command) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}

	e.cfg, err = loadConfig(v)
	if err != nil {
		return err
	}

	e.logger, err = e.cfg.logger()
	if err != nil {
		return err
	}

	e.db, err = e.cfg.pool().Open()
	if err != nil {
		return fmt.Errorf("unable to open the database: %w", err)
	}

	return nil
}

// close releases the database pool and flushes the logger.
func (e *env) close() error {
	var err error

	if e.db != nil {
		err = multierr.Append(err, e.db.Close())
	}

	if e.logger != nil {
		// Sync fails on terminals and pipes on some platforms, so its error
		// is ignored.
		_ = e.logger.Sync()
	}

	return err
}

// queueName returns the name of the queue to operate on.
func (e *env) queueName() (string, error) {
	if e.cfg.Queue == "" {
		return "", fmt.Errorf("a queue name must be provided via --queue or %s_QUEUE", envPrefix)
	}

	return e.cfg.Queue, nil
}

// queue opens the queue with the given name.
func (e *env) queue(
	ctx context.Context,
	name string,
	options ...sqlqueue.Option,
) (*sqlqueue.Queue, error) {
	options = append(
		e.cfg.queueOptions(),
		append(
			options,
			sqlqueue.WithLogger(loggingx.Zap(e.logger.Named(name))),
		)...,
	)

	return sqlqueue.New(ctx, e.db, name, options...)
}

// defaultQueue opens the queue named by the configuration.
func (e *env) defaultQueue(ctx context.Context) (*sqlqueue.Queue, error) {
	name, err := e.queueName()
	if err != nil {
		return nil, err
	}

	return e.queue(ctx, name)
}
