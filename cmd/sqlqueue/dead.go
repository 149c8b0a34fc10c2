package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeadCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "dead <fingerprint>",
		Short: "Show a message that was moved to the dead-letter table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := e.defaultQueue(cmd.Context())
			if err != nil {
				return err
			}

			m, ok, err := q.DeadLetter(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !ok {
				return fmt.Errorf("%s is not in the dead-letter table of the '%s' queue", args[0], q.Name())
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "kind:         %s\n", m.Kind)
			fmt.Fprintf(w, "attempts:     %d\n", m.Attributes.Attempts)
			fmt.Fprintf(w, "ack attempts: %d\n", m.Attributes.AckAttempts)
			fmt.Fprintf(w, "payload:      %s\n", m.Payload)

			return nil
		},
	}
}
