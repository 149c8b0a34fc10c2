package main

import (
	"fmt"

	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
	"github.com/spf13/cobra"
)

func newSchemaCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the tables used by a queue",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Create the queue's tables if they do not already exist",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				name, err := e.queueName()
				if err != nil {
					return err
				}

				t := e.cfg.tables(name)
				if err := sqlpersistence.CreateSchema(cmd.Context(), e.db, t); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "created %s, %s, %s and %s\n", t.Queue, t.Unacked, t.Messages, t.DeadLetter)
				return nil
			},
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop the queue's tables, discarding all of its messages",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				name, err := e.queueName()
				if err != nil {
					return err
				}

				t := e.cfg.tables(name)
				if err := sqlpersistence.DropSchema(cmd.Context(), e.db, t); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "dropped %s, %s, %s and %s\n", t.Queue, t.Unacked, t.Messages, t.DeadLetter)
				return nil
			},
		},
	)

	return cmd
}
