package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove message bodies that are no longer referenced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := e.defaultQueue(cmd.Context())
			if err != nil {
				return err
			}

			n, err := q.CleanupMessages(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d message bod(ies) removed\n", n)
			return nil
		},
	}
}
