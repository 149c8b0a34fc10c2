package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the number of messages in each part of a queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := e.defaultQueue(cmd.Context())
			if err != nil {
				return err
			}

			s, err := q.ReadState(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "queue:    %s\n", q.Name())
			fmt.Fprintf(w, "depth:    %d\n", s.Depth)
			fmt.Fprintf(w, "ready:    %d\n", s.Ready)
			fmt.Fprintf(w, "unacked:  %d\n", s.Unacked)
			fmt.Fprintf(w, "orphaned: %d\n", s.Orphaned)

			return nil
		},
	}
}
