package main

import (
	"fmt"

	"github.com/dogmatiq/sqlqueue"
	"github.com/spf13/cobra"
)

func newRetryCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Return expired and stale messages to the queue once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var expired int

			q, err := e.defaultQueue(
				cmd.Context(),
				sqlqueue.WithObserver(
					sqlqueue.ObserverFunc(func(ev sqlqueue.Event) {
						if p, ok := ev.(sqlqueue.RetryPolled); ok {
							expired += p.Expired
						}
					}),
				),
			)
			if err != nil {
				return err
			}

			if err := q.Retry(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d expired message(s) processed\n", expired)
			return nil
		},
	}
}
